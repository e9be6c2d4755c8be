// Package speech implements dictation: one recognition session at a time,
// emitting at most one transcript per session.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

var (
	ErrAlreadyListening = errors.New("dictation already in progress")
	ErrNotListening     = errors.New("dictation not started")
)

// Recognizer transcribes one recorded utterance.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, locale string) (string, error)
}

// Adapter drives a Recognizer through Idle → Listening → Idle.
type Adapter struct {
	recognizer   Recognizer
	locale       string
	onTranscript func(string)

	mu      sync.Mutex
	state   State
	session uint64
	cancel  context.CancelFunc
}

func NewAdapter(recognizer Recognizer, locale string, onTranscript func(string)) *Adapter {
	return &Adapter{
		recognizer:   recognizer,
		locale:       locale,
		onTranscript: onTranscript,
	}
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Listening {
		return ErrAlreadyListening
	}
	a.state = Listening
	a.session++
	return nil
}

// Submit recognizes audio for the current session. The transcript is emitted
// only if the session was not stopped meanwhile. Whatever happens, the adapter
// ends Idle.
func (a *Adapter) Submit(ctx context.Context, audio []byte, mimeType string) (string, error) {
	a.mu.Lock()
	if a.state != Listening {
		a.mu.Unlock()
		return "", ErrNotListening
	}
	if a.cancel != nil {
		a.mu.Unlock()
		return "", ErrAlreadyListening
	}
	session := a.session
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	transcript, err := a.recognizer.Transcribe(ctx, audio, mimeType, a.locale)
	transcript = strings.TrimSpace(transcript)

	a.mu.Lock()
	current := a.session == session && a.state == Listening
	if current {
		a.state = Idle
		a.cancel = nil
	}
	a.mu.Unlock()

	if !current {
		log.Debug("Discarding transcript of a stopped dictation")
		return "", nil
	}
	if err != nil {
		log.Warn("Speech recognition failed", "error", err)
		return "", nil
	}
	if transcript == "" {
		return "", nil
	}
	if a.onTranscript != nil {
		a.onTranscript(transcript)
	}
	return transcript, nil
}

// Stop cancels the current session and any recognition in flight.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.state = Idle
	a.session++
}

// JoinDraft appends a transcript to a draft, space separated.
func JoinDraft(draft, transcript string) string {
	if draft == "" {
		return transcript
	}
	if transcript == "" {
		return draft
	}
	return draft + " " + transcript
}
