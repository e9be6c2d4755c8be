package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"doulia.com/workflow-audit/internal/store"
)

// Attachment is a document sent along with one user message.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"-"` // base64
}

// Bytes decodes the base64 payload.
func (a *Attachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

var ErrInvalidRequest = errors.New("invalid provider request")

// ChatRequest is one conversational turn.
type ChatRequest struct {
	SystemInstruction string
	Temperature       float32
	History           []store.Message
	Text              string
	Attachment        *Attachment
}

func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" && r.Attachment == nil {
		return fmt.Errorf("%w: chat request has neither text nor attachment", ErrInvalidRequest)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f out of range", ErrInvalidRequest, r.Temperature)
	}
	for i, m := range r.History {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: history message %d has role %q", ErrInvalidRequest, i, m.Role)
		}
	}
	if a := r.Attachment; a != nil {
		if a.MIMEType == "" {
			return fmt.Errorf("%w: attachment %s has no media type", ErrInvalidRequest, a.Name)
		}
		if _, err := a.Bytes(); err != nil {
			return fmt.Errorf("%w: attachment %s is not base64: %v", ErrInvalidRequest, a.Name, err)
		}
	}
	return nil
}

// SpeechRequest asks for synthesized speech of Text in the given prebuilt voice.
type SpeechRequest struct {
	Text  string
	Voice string
}

func (r SpeechRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: speech request has no text", ErrInvalidRequest)
	}
	if r.Voice == "" {
		return fmt.Errorf("%w: speech request has no voice", ErrInvalidRequest)
	}
	return nil
}

// ReportRequest asks for a JSON document matching Schema, derived from Prompt.
type ReportRequest struct {
	Prompt string
	Schema *genai.Schema
}

func (r ReportRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: report request has no prompt", ErrInvalidRequest)
	}
	if r.Schema == nil {
		return fmt.Errorf("%w: report request has no schema", ErrInvalidRequest)
	}
	return nil
}

// Provider is the remote generative capability behind the assistant.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	// Speech returns base64-encoded 16-bit PCM, 24 kHz mono.
	Speech(ctx context.Context, req SpeechRequest) (string, error)
	// Report returns the raw JSON text produced under the schema.
	Report(ctx context.Context, req ReportRequest) (string, error)
}
