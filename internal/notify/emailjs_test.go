package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doulia.com/workflow-audit/internal/report"
)

func sampleReport() *report.AuditReport {
	return &report.AuditReport{
		DailyLife:           "Consultations et gardes.",
		PainPoints:          []string{"dossiers papier", "ordonnances manuscrites"},
		PriorityFeature:     "Dossier patient numérique",
		TimeGain:            "2 heures par jour",
		ServiceImpact:       "Moins d'attente",
		TechnicalComplexity: report.ComplexityMedium,
	}
}

func TestSendAuditReport(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	e := NewEmailJS(EmailJSConfig{ServiceID: "svc", TemplateID: "tpl", PublicKey: "pub", Endpoint: srv.URL})
	assert.True(t, e.SendAuditReport(context.Background(), sampleReport()))

	assert.Equal(t, "svc", got.ServiceID)
	assert.Equal(t, "tpl", got.TemplateID)
	assert.Equal(t, "pub", got.UserID)
	assert.Equal(t, "Promoteur DOULIA", got.TemplateParams["to_name"])
	assert.Equal(t, "Dr Happy", got.TemplateParams["doctor_name"])
	assert.Equal(t, "Hôpital Laquintinie", got.TemplateParams["hospital"])
	assert.Equal(t, "dossiers papier, ordonnances manuscrites", got.TemplateParams["pain_points"])
	assert.Equal(t, "2 heures par jour", got.TemplateParams["time_gain"])
	assert.Equal(t, "Moins d'attente", got.TemplateParams["impact"])
	assert.Contains(t, got.TemplateParams["report_summary"], `"priorityFeature": "Dossier patient numérique"`)
}

func TestSendAuditReportWithoutCredentials(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	e := NewEmailJS(EmailJSConfig{ServiceID: "svc", Endpoint: srv.URL})
	assert.False(t, e.Configured())
	assert.False(t, e.SendAuditReport(context.Background(), sampleReport()))
	assert.False(t, called)
}

func TestSendAuditReportRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "The Public Key is invalid", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewEmailJS(EmailJSConfig{ServiceID: "svc", TemplateID: "tpl", PublicKey: "bad", Endpoint: srv.URL})
	assert.False(t, e.SendAuditReport(context.Background(), sampleReport()))
}

func TestSendAuditReportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e := NewEmailJS(EmailJSConfig{ServiceID: "svc", TemplateID: "tpl", PublicKey: "pub", Endpoint: url})
	assert.False(t, e.SendAuditReport(context.Background(), sampleReport()))
}
