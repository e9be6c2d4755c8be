package core

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"doulia.com/workflow-audit/internal/playback"
	"doulia.com/workflow-audit/internal/speech"
	"doulia.com/workflow-audit/internal/store"
)

// DefaultSessionID names the session that always exists.
const DefaultSessionID = "default"

var ErrInvalidSessionID = errors.New("invalid session id")

type ManagerOptions struct {
	Session SessionOptions
	// OriginPatterns restricts which origins may open the playback websocket.
	OriginPatterns []string
}

// SessionManager owns every audit session of the process. Sessions are built
// lazily and keyed by id; their conversations live under that id in the store.
type SessionManager struct {
	kv         store.KeyValue
	assistant  *AssistantClient
	recognizer speech.Recognizer
	mailer     Mailer
	opts       ManagerOptions

	mu       sync.Mutex
	sessions map[string]*AuditSession
}

func NewSessionManager(kv store.KeyValue, assistant *AssistantClient, recognizer speech.Recognizer, mailer Mailer, opts ManagerOptions) *SessionManager {
	return &SessionManager{
		kv:         kv,
		assistant:  assistant,
		recognizer: recognizer,
		mailer:     mailer,
		opts:       opts,
		sessions:   make(map[string]*AuditSession),
	}
}

// ValidSessionID accepts the default session or a UUID.
func ValidSessionID(id string) bool {
	if id == DefaultSessionID {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the session for id, restoring it from storage on first use.
func (m *SessionManager) Get(ctx context.Context, id string) (*AuditSession, error) {
	if !ValidSessionID(id) {
		return nil, ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := m.build(id)
	s.Init(ctx)
	m.sessions[id] = s
	return s, nil
}

// Create starts a new session under a fresh id.
func (m *SessionManager) Create(ctx context.Context) *AuditSession {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.build(id)
	s.Init(ctx)
	m.sessions[id] = s
	log.Info("Created audit session", "session", id)
	return s
}

// Close tears every session down.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := make([]*AuditSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*AuditSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
	log.Debug("Audit sessions closed", "count", len(sessions))
}

func (m *SessionManager) build(id string) *AuditSession {
	deps := sessionDeps{
		kv:          m.kv,
		assistant:   m.assistant,
		recognizer:  m.recognizer,
		mailer:      m.mailer,
		broadcaster: playback.NewBroadcaster(m.opts.OriginPatterns),
	}
	return newAuditSession(id, deps, m.opts.Session)
}
