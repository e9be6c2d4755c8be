// Package notify relays finished audit reports to the DOULIA promoters.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"doulia.com/workflow-audit/internal/report"
)

const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

type EmailJSConfig struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	// Endpoint defaults to the public EmailJS REST endpoint.
	Endpoint string
	Timeout  time.Duration
}

// EmailJS sends reports through an EmailJS template. It never returns an
// error: any failure is logged and reported as not sent.
type EmailJS struct {
	cfg    EmailJSConfig
	client *http.Client
}

func NewEmailJS(cfg EmailJSConfig) *EmailJS {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &EmailJS{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (e *EmailJS) Configured() bool {
	return e.cfg.ServiceID != "" && e.cfg.TemplateID != "" && e.cfg.PublicKey != ""
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// TemplateParams are the variables the DOULIA email template expects.
func TemplateParams(r *report.AuditReport) (map[string]string, error) {
	summary, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report summary: %w", err)
	}
	return map[string]string{
		"to_name":          "Promoteur DOULIA",
		"doctor_name":      "Dr Happy",
		"hospital":         report.HospitalName,
		"report_summary":   string(summary),
		"priority_feature": r.PriorityFeature,
		"time_gain":        r.TimeGain,
		"impact":           r.ServiceImpact,
		"pain_points":      strings.Join(r.PainPoints, ", "),
	}, nil
}

// SendAuditReport implements core.Mailer.
func (e *EmailJS) SendAuditReport(ctx context.Context, r *report.AuditReport) bool {
	if !e.Configured() {
		log.Error("EmailJS credentials missing from environment variables")
		return false
	}
	if r == nil {
		log.Error("No report to send")
		return false
	}

	params, err := TemplateParams(r)
	if err != nil {
		log.Error("Failed to send email", "error", err)
		return false
	}
	payload, err := json.Marshal(sendRequest{
		ServiceID:      e.cfg.ServiceID,
		TemplateID:     e.cfg.TemplateID,
		UserID:         e.cfg.PublicKey,
		TemplateParams: params,
	})
	if err != nil {
		log.Error("Failed to send email", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Error("Failed to send email", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		log.Error("Failed to send email", "error", err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		log.Error("Failed to send email", "status", resp.StatusCode, "body", string(body))
		return false
	}
	log.Info("Email successfully sent!", "status", resp.StatusCode, "text", string(body))
	return true
}
