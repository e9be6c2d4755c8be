package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"doulia.com/workflow-audit/internal/report"
	"doulia.com/workflow-audit/internal/store"
)

const (
	// DefaultHistoryWindow is how many of the most recent messages are sent as
	// context with each turn; older ones are dropped.
	DefaultHistoryWindow = 10

	ChatTemperature = float32(0.6)
	DefaultVoice    = "Zephyr"

	SystemInstruction = `
Tu es Douly, l'Experte-Auditrice IA de DOULIA, spécialisée dans l'analyse des flux de travail médicaux pour le Docteur Happy à l'Hôpital La Quintinie de Douala.
Réponds TOUJOURS en Français. Pas de caractères spéciaux comme les astérisques ou les hashtags de titres.
Sois chaleureuse, respectueuse et concise.
`

	FallbackReply    = "Docteur, une instabilité technique survient. Veuillez vérifier la connexion ou la configuration de la clé API."
	InterruptedReply = "La requête a été interrompue. Veuillez réessayer."

	reportPromptPrefix = "Analyse cette conversation et génère le rapport final JSON : \n"
)

// AssistantClient turns conversation state into provider requests. Chat and
// speech never fail for the caller; report generation always reports failure.
type AssistantClient struct {
	provider Provider
	window   int
	voice    string
}

func NewAssistantClient(p Provider, window int, voice string) *AssistantClient {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if voice == "" {
		voice = DefaultVoice
	}
	return &AssistantClient{provider: p, window: window, voice: voice}
}

func (c *AssistantClient) Window() int {
	return c.window
}

// SendMessage returns the assistant reply to userText given the prior history.
func (c *AssistantClient) SendMessage(ctx context.Context, userText string, history []store.Message, attachment *Attachment) string {
	req := ChatRequest{
		SystemInstruction: SystemInstruction,
		Temperature:       ChatTemperature,
		History:           Window(history, c.window),
		Text:              userText,
		Attachment:        attachment,
	}

	reply, err := c.provider.Chat(ctx, req)
	if err != nil {
		log.Error("Gemini API Error", "error", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return InterruptedReply
		}
		return FallbackReply
	}

	reply = StripMarkdown(reply)
	if reply == "" {
		log.Warn("Gemini returned an empty reply")
		return FallbackReply
	}
	return reply
}

// GenerateSpeech returns base64 PCM audio for text, or false on any failure.
func (c *AssistantClient) GenerateSpeech(ctx context.Context, text string) (string, bool) {
	audio, err := c.provider.Speech(ctx, SpeechRequest{Text: text, Voice: c.voice})
	if err != nil {
		log.Warn("TTS Error", "error", err)
		return "", false
	}
	if audio == "" {
		return "", false
	}
	return audio, true
}

func (c *AssistantClient) GenerateFinalReport(ctx context.Context, history []store.Message) (*report.AuditReport, error) {
	raw, err := c.provider.Report(ctx, ReportRequest{
		Prompt: reportPromptPrefix + Transcript(history),
		Schema: report.Schema(),
	})
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}

	r, err := report.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("report generation returned an unusable document: %w", err)
	}
	return r, nil
}

// Window returns the last n messages of history.
func Window(history []store.Message, n int) []store.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// StripMarkdown removes emphasis and heading markers.
func StripMarkdown(s string) string {
	return strings.TrimSpace(strings.NewReplacer("*", "", "#", "").Replace(s))
}

// Transcript renders the log one "role: text" line per message.
func Transcript(history []store.Message) string {
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Text)
	}
	return strings.Join(lines, "\n")
}
