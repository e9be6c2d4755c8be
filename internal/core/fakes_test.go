package core

import (
	"context"
	"errors"
	"sync"

	"doulia.com/workflow-audit/internal/report"
)

const validReportJSON = `{
  "dailyLife": "Consultations le matin, visites l'après-midi.",
  "painPoints": ["dossiers papier", "files d'attente"],
  "personalChallenges": "Trop de saisie.",
  "priorityFeature": "Dossier patient numérique",
  "timeGain": "1 heure par jour",
  "serviceImpact": "Moins d'attente",
  "technicalComplexity": "Moyen",
  "recommendedModel": "Assistant de saisie",
  "budgetNote": "Pilote"
}`

var errTransport = errors.New("connection reset by peer")

type fakeProvider struct {
	mu sync.Mutex

	reply     string
	chatErr   error
	reportRaw string
	reportErr error
	speech    string
	speechErr error

	// When set, Chat signals entered and then waits for release.
	entered chan struct{}
	release chan struct{}

	chats   []ChatRequest
	reports []ReportRequest
	spoken  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		reply:     "Merci Docteur, parlez-moi de votre journée.",
		reportRaw: validReportJSON,
		speechErr: errors.New("speech disabled"),
	}
}

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	entered, release := f.entered, f.release
	reply, err := f.reply, f.chatErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeProvider) Speech(ctx context.Context, req SpeechRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, req.Text)
	return f.speech, f.speechErr
}

func (f *fakeProvider) Report(ctx context.Context, req ReportRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, req)
	return f.reportRaw, f.reportErr
}

func (f *fakeProvider) lastChat() ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[len(f.chats)-1]
}

type fakeRecognizer struct {
	text string
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	return f.text, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*report.AuditReport
	ok   bool
}

func (f *fakeMailer) SendAuditReport(ctx context.Context, r *report.AuditReport) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, r)
	return f.ok
}
