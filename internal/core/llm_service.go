package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"doulia.com/workflow-audit/internal/store"
)

const (
	defaultChatModelName   = "gemini-3-flash-preview"
	defaultSpeechModelName = "gemini-2.5-flash-preview-tts"

	// Requests still go out without a key so failures surface as provider
	// errors and degrade like any other transport failure.
	missingAPIKey = "MISSING_KEY"

	transcriptionInstruction = "Tu transcris fidèlement des dictées médicales. " +
		"Réponds uniquement avec le texte prononcé, sans commentaire ni ponctuation ajoutée."
)

type LLMOptions struct {
	APIKey      string
	ChatModel   string
	SpeechModel string
}

// LLMService implements Provider and speech.Recognizer on the Gemini API.
type LLMService struct {
	client    *genai.Client
	speech    *SpeechSynth
	chatModel string
}

func NewLLMService(ctx context.Context, opts LLMOptions) (*LLMService, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		log.Error("CRITICAL: GEMINI_API_KEY is missing, assistant replies will fall back")
		apiKey = missingAPIKey
	}
	if opts.ChatModel == "" {
		opts.ChatModel = defaultChatModelName
	}
	if opts.SpeechModel == "" {
		opts.SpeechModel = defaultSpeechModelName
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	speech, err := NewSpeechSynth(ctx, apiKey, opts.SpeechModel)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &LLMService{
		client:    client,
		speech:    speech,
		chatModel: opts.ChatModel,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Debug("GenAI client closed.")
		}
	}
}

func toContents(history []store.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		contents = append(contents, &genai.Content{
			Role:  string(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Text)},
		})
	}
	return contents
}

func (s *LLMService) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemInstruction)},
	}
	model.SetTemperature(req.Temperature)

	chatSession := model.StartChat()
	chatSession.History = toContents(req.History)

	parts := []genai.Part{genai.Text(req.Text)}
	if req.Attachment != nil {
		data, _ := req.Attachment.Bytes() // validated above
		parts = append(parts, genai.Blob{MIMEType: req.Attachment.MIMEType, Data: data})
	}

	resp, err := chatSession.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	return responseText(resp)
}

func (s *LLMService) Report(ctx context.Context, req ReportRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	model := s.client.GenerativeModel(s.chatModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = req.Schema

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini report generation failed: %w", err)
	}
	return responseText(resp)
}

func (s *LLMService) Speech(ctx context.Context, req SpeechRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return s.speech.Synthesize(ctx, req.Text, req.Voice)
}

// Transcribe implements speech.Recognizer.
func (s *LLMService) Transcribe(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty dictation", ErrInvalidRequest)
	}

	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(transcriptionInstruction)},
	}
	model.SetTemperature(0)

	prompt := fmt.Sprintf("Transcris cet enregistrement (langue : %s).", locale)
	resp, err := model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: audio}, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates/parts")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			log.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}
	return text.String(), nil
}
