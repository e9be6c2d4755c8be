package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	KeyMessages  = "doulia_messages"
	KeyAuditStep = "doulia_audit_step"
)

// ConversationStore is the message log and audit step of one session, mirrored
// into a KeyValue under two keys. Writes are best effort: a failed write is
// logged and the in-memory mutation stands.
type ConversationStore struct {
	kv        KeyValue
	namespace string
	now       func() time.Time

	mu       sync.RWMutex
	messages []Message
	step     int
}

func NewConversationStore(kv KeyValue, namespace string) *ConversationStore {
	return &ConversationStore{
		kv:        kv,
		namespace: namespace,
		now:       time.Now,
		messages:  []Message{WelcomeMessage(time.Now())},
	}
}

func (s *ConversationStore) key(name string) string {
	if s.namespace == "" {
		return name
	}
	return s.namespace + ":" + name
}

// Load replaces the in-memory state with the persisted one. It never fails:
// missing or unreadable messages fall back to the welcome message and step 0.
func (s *ConversationStore) Load(ctx context.Context) Snapshot {
	messages, err := s.readMessages(ctx)
	if err != nil {
		log.Warn("Falling back to a fresh conversation", "namespace", s.namespace, "error", err)
		messages = nil
	}

	step := 0
	if messages != nil {
		step = s.readStep(ctx)
	} else {
		messages = []Message{WelcomeMessage(s.now())}
	}

	s.mu.Lock()
	s.messages = messages
	s.step = step
	s.mu.Unlock()

	return s.Snapshot()
}

func (s *ConversationStore) readMessages(ctx context.Context) ([]Message, error) {
	raw, found, err := s.kv.Get(ctx, s.key(KeyMessages))
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	if !found {
		return nil, nil
	}

	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("persisted conversation is empty")
	}
	for i, m := range messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	return messages, nil
}

func (s *ConversationStore) readStep(ctx context.Context) int {
	raw, found, err := s.kv.Get(ctx, s.key(KeyAuditStep))
	if err != nil {
		log.Warn("Failed to read audit step, using 0", "namespace", s.namespace, "error", err)
		return 0
	}
	if !found {
		return 0
	}
	step, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || step < 0 {
		log.Warn("Ignoring malformed audit step", "namespace", s.namespace, "value", raw)
		return 0
	}
	return step
}

func (s *ConversationStore) Append(ctx context.Context, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
}

// IncrementStep adds one to the audit step and returns the new value.
func (s *ConversationStore) IncrementStep(ctx context.Context) int {
	s.mu.Lock()
	s.step++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return snap.AuditStep
}

func (s *ConversationStore) Reset(ctx context.Context) {
	s.mu.Lock()
	s.messages = []Message{WelcomeMessage(s.now())}
	s.step = 0
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key(KeyMessages), s.key(KeyAuditStep)); err != nil {
		log.Warn("Failed to erase persisted conversation", "namespace", s.namespace, "error", err)
	}
}

func (s *ConversationStore) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *ConversationStore) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

func (s *ConversationStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *ConversationStore) snapshotLocked() Snapshot {
	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{Messages: messages, AuditStep: s.step}
}

// persist overwrites both keys, messages first.
func (s *ConversationStore) persist(ctx context.Context, snap Snapshot) {
	payload, err := json.Marshal(snap.Messages)
	if err != nil {
		log.Warn("Failed to encode conversation", "namespace", s.namespace, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key(KeyMessages), string(payload)); err != nil {
		log.Warn("Failed to persist messages", "namespace", s.namespace, "error", err)
	}
	if err := s.kv.Set(ctx, s.key(KeyAuditStep), strconv.Itoa(snap.AuditStep)); err != nil {
		log.Warn("Failed to persist audit step", "namespace", s.namespace, "error", err)
	}
}
