package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"doulia.com/workflow-audit/internal/audio"
	"doulia.com/workflow-audit/internal/playback"
	"doulia.com/workflow-audit/internal/report"
	"doulia.com/workflow-audit/internal/speech"
	"doulia.com/workflow-audit/internal/store"
)

const (
	DefaultReportMinStep = 3
	// Steps at which the progress bar reads 100%.
	progressSteps = 5
	speechTimeout = 60 * time.Second
)

var (
	ErrBusy               = errors.New("a reply or a report is already being prepared")
	ErrEmptyMessage       = errors.New("message has neither text nor attachment")
	ErrReportUnavailable  = errors.New("report is not available yet")
	ErrNoReport           = errors.New("no report has been generated")
	ErrStale              = errors.New("session was reset while the request was running")
	ErrUnsupportedFile    = errors.New("unsupported attachment type")
	ErrAttachmentRequired = errors.New("attachment is empty")
)

// AllowedAttachmentExtensions are the document types offered by the file picker.
var AllowedAttachmentExtensions = []string{".pdf", ".doc", ".docx", ".jpg", ".png", ".txt"}

// Mailer relays a finished report; false means it was not sent.
type Mailer interface {
	SendAuditReport(ctx context.Context, r *report.AuditReport) bool
}

type SessionOptions struct {
	ReportMinStep int
	ReportDelay   time.Duration
	Locale        string
}

type AttachmentInfo struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type SessionState struct {
	ID              string              `json:"id"`
	Messages        []store.Message     `json:"messages"`
	AuditStep       int                 `json:"audit_step"`
	Progress        int                 `json:"progress"`
	Thinking        bool                `json:"thinking"`
	Synthesizing    bool                `json:"synthesizing"`
	Recording       bool                `json:"recording"`
	Playing         bool                `json:"playing"`
	Draft           string              `json:"draft"`
	Attachment      *AttachmentInfo     `json:"attachment,omitempty"`
	ReportAvailable bool                `json:"report_available"`
	Report          *report.AuditReport `json:"report,omitempty"`
}

// AuditSession is the controller of one audit conversation. It is the only
// writer of its conversation store and its player.
type AuditSession struct {
	id          string
	store       *store.ConversationStore
	assistant   *AssistantClient
	player      *playback.Player
	broadcaster *playback.Broadcaster
	dictation   *speech.Adapter
	mailer      Mailer
	opts        SessionOptions
	now         func() time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu           sync.Mutex
	generation   uint64
	thinking     bool
	synthesizing bool
	draft        string
	attachment   *Attachment
	report       *report.AuditReport
}

type sessionDeps struct {
	kv          store.KeyValue
	assistant   *AssistantClient
	recognizer  speech.Recognizer
	mailer      Mailer
	broadcaster *playback.Broadcaster
	// sink replaces the broadcaster as the player's output when set.
	sink playback.Sink
}

func newAuditSession(id string, deps sessionDeps, opts SessionOptions) *AuditSession {
	if opts.ReportMinStep <= 0 {
		opts.ReportMinStep = DefaultReportMinStep
	}
	if opts.Locale == "" {
		opts.Locale = "fr-FR"
	}
	var sink playback.Sink = deps.broadcaster
	if deps.sink != nil {
		sink = deps.sink
	}

	s := &AuditSession{
		id:          id,
		store:       store.NewConversationStore(deps.kv, id),
		assistant:   deps.assistant,
		player:      playback.NewPlayer(deps.assistant, sink),
		broadcaster: deps.broadcaster,
		mailer:      deps.mailer,
		opts:        opts,
		now:         time.Now,
	}
	s.dictation = speech.NewAdapter(deps.recognizer, opts.Locale, s.appendToDraft)
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	return s
}

func (s *AuditSession) ID() string {
	return s.id
}

// Broadcaster serves the playback websocket of this session.
func (s *AuditSession) Broadcaster() *playback.Broadcaster {
	return s.broadcaster
}

// Init restores the conversation from storage.
func (s *AuditSession) Init(ctx context.Context) {
	snap := s.store.Load(ctx)
	log.Info("Audit session ready", "session", s.id, "messages", len(snap.Messages), "step", snap.AuditStep)
}

// Teardown stops playback and dictation and waits for background speech tasks.
func (s *AuditSession) Teardown() {
	s.player.Stop()
	s.dictation.Stop()
	s.bgCancel()
	s.bg.Wait()
}

func (s *AuditSession) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *AuditSession) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *AuditSession) appendToDraft(transcript string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = speech.JoinDraft(s.draft, transcript)
}

// Attach sets the document sent with the next message, replacing any other.
func (s *AuditSession) Attach(name, mimeType string, data []byte) (*AttachmentInfo, error) {
	if !AllowedAttachment(name) {
		return nil, ErrUnsupportedFile
	}
	if len(data) == 0 {
		return nil, ErrAttachmentRequired
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachment = &Attachment{
		Name:     filepath.Base(name),
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
	return attachmentInfo(s.attachment), nil
}

func (s *AuditSession) RemoveAttachment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachment = nil
}

func AllowedAttachment(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedAttachmentExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func attachmentInfo(a *Attachment) *AttachmentInfo {
	if a == nil {
		return nil
	}
	data, _ := a.Bytes()
	return &AttachmentInfo{Name: a.Name, MIMEType: a.MIMEType, Size: len(data)}
}

// Send posts a user message and returns the committed assistant reply. An
// empty text sends the current draft.
func (s *AuditSession) Send(ctx context.Context, text string) (*store.Message, error) {
	s.mu.Lock()
	if s.thinking || s.synthesizing {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		text = s.draft
	}
	text = strings.TrimSpace(text)
	if text == "" && s.attachment == nil {
		s.mu.Unlock()
		return nil, ErrEmptyMessage
	}

	attachment := s.attachment
	userText := text
	if attachment != nil {
		userText = text + "\n\nDOCUMENT JOINT : " + attachment.Name
	}
	s.player.Stop()

	// Writes must land even if the caller goes away mid-request.
	persistCtx := context.WithoutCancel(ctx)
	prior := s.store.Messages()
	s.store.Append(persistCtx, store.Message{Role: store.RoleUser, Text: userText, Timestamp: s.now()})

	s.thinking = true
	s.draft = ""
	s.attachment = nil
	generation := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.thinking = false
		s.mu.Unlock()
	}()

	replyText := s.assistant.SendMessage(ctx, text, prior, attachment)

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		log.Info("Discarding reply for a reset session", "session", s.id)
		return nil, ErrStale
	}
	reply := store.Message{Role: store.RoleModel, Text: replyText, Timestamp: s.now()}
	s.store.Append(persistCtx, reply)
	step := s.store.IncrementStep(persistCtx)
	s.mu.Unlock()

	log.Debug("Assistant reply committed", "session", s.id, "step", step)
	s.speak(replyText)
	return &reply, nil
}

// speak plays text in the background. Its outcome never touches the conversation.
func (s *AuditSession) speak(text string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, speechTimeout)
		defer cancel()
		if err := s.player.Play(ctx, text); err != nil {
			log.Warn("Speech playback failed", "session", s.id, "error", err)
		}
	}()
}

// SpeechWAV synthesizes text as a WAV file, or false when no audio came back.
func (s *AuditSession) SpeechWAV(ctx context.Context, text string) ([]byte, bool, error) {
	payload, ok := s.assistant.GenerateSpeech(ctx, text)
	if !ok {
		return nil, false, nil
	}
	buf, err := audio.Decode(payload, audio.SpeechFormat)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode speech audio: %w", err)
	}
	return audio.EncodeWAV(buf), true, nil
}

func (s *AuditSession) StopSpeech() {
	s.player.Stop()
}

// StartDictation begins a recording; assistant speech is cut first.
func (s *AuditSession) StartDictation() error {
	s.player.Stop()
	return s.dictation.Start()
}

// SubmitDictation transcribes the recording; the transcript joins the draft.
func (s *AuditSession) SubmitDictation(ctx context.Context, recording []byte, mimeType string) (string, error) {
	return s.dictation.Submit(ctx, recording, mimeType)
}

func (s *AuditSession) StopDictation() {
	s.dictation.Stop()
}

func (s *AuditSession) ReportAvailable() bool {
	return s.store.Step() >= s.opts.ReportMinStep
}

// GenerateReport synthesizes the final report from the whole conversation.
// Failures are returned as is and leave no report behind.
func (s *AuditSession) GenerateReport(ctx context.Context) (*report.AuditReport, error) {
	s.mu.Lock()
	if s.synthesizing || s.thinking {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if !s.ReportAvailable() {
		s.mu.Unlock()
		return nil, ErrReportUnavailable
	}
	s.synthesizing = true
	generation := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.synthesizing = false
		s.mu.Unlock()
	}()

	s.player.Stop()

	if s.opts.ReportDelay > 0 {
		timer := time.NewTimer(s.opts.ReportDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	r, err := s.assistant.GenerateFinalReport(ctx, s.store.Messages())
	if err != nil {
		log.Error("Report Generation Error", "session", s.id, "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return nil, ErrStale
	}
	s.report = r
	return r, nil
}

func (s *AuditSession) Report() (*report.AuditReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil, ErrNoReport
	}
	return s.report, nil
}

// EmailReport relays the current report; false means the relay did not send it.
func (s *AuditSession) EmailReport(ctx context.Context) (bool, error) {
	r, err := s.Report()
	if err != nil {
		return false, err
	}
	if s.mailer == nil {
		return false, nil
	}
	return s.mailer.SendAuditReport(ctx, r), nil
}

// Reset wipes the conversation back to the welcome message.
func (s *AuditSession) Reset(ctx context.Context) {
	s.player.Stop()
	s.dictation.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.store.Reset(context.WithoutCancel(ctx))
	s.report = nil
	s.draft = ""
	s.attachment = nil
	log.Info("Audit session reset", "session", s.id)
}

func (s *AuditSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.store.Snapshot()
	progress := snap.AuditStep * 100 / progressSteps
	if progress > 100 {
		progress = 100
	}

	return SessionState{
		ID:              s.id,
		Messages:        snap.Messages,
		AuditStep:       snap.AuditStep,
		Progress:        progress,
		Thinking:        s.thinking,
		Synthesizing:    s.synthesizing,
		Recording:       s.dictation.State() == speech.Listening,
		Playing:         s.player.Playing(),
		Draft:           s.draft,
		Attachment:      attachmentInfo(s.attachment),
		ReportAvailable: snap.AuditStep >= s.opts.ReportMinStep,
		Report:          s.report,
	}
}
