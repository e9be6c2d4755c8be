package core

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"
)

// SpeechSynth calls the Gemini speech model through the unified genai SDK,
// which exposes the audio response modality and prebuilt voices.
type SpeechSynth struct {
	client *genai.Client
	model  string
}

func NewSpeechSynth(ctx context.Context, apiKey, model string) (*SpeechSynth, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &SpeechSynth{client: client, model: model}, nil
}

// Synthesize returns base64 PCM for text spoken with voice.
func (s *SpeechSynth) Synthesize(ctx context.Context, text, voice string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	res, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text("Lis ceci : "+text), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini speech request failed: %w", err)
	}
	data, err := speechAudio(res)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// speechAudio extracts the inline audio of the first candidate.
func speechAudio(res *genai.GenerateContentResponse) ([]byte, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0] == nil ||
		res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini speech response has no candidates")
	}

	part := res.Candidates[0].Content.Parts[0]
	if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
		return nil, fmt.Errorf("gemini speech response has no audio")
	}
	return part.InlineData.Data, nil
}
