package core

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doulia.com/workflow-audit/internal/audio"
	"doulia.com/workflow-audit/internal/playback"
	"doulia.com/workflow-audit/internal/store"
)

// 100 ms of 24 kHz mono silence.
var pcmPayload = base64.StdEncoding.EncodeToString(make([]byte, 4800))

type recordingStream struct {
	sink *recordingSink
	done chan struct{}
	once sync.Once
}

func (r *recordingStream) Stop() error {
	stopped := false
	r.once.Do(func() {
		stopped = true
		r.sink.stopped()
		close(r.done)
	})
	if !stopped {
		return playback.ErrAlreadyStopped
	}
	return nil
}

func (r *recordingStream) Done() <-chan struct{} {
	return r.done
}

func (r *recordingStream) isStopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// recordingSink plays until stopped and records the conversation as it stood
// at every start and stop.
type recordingSink struct {
	session *AuditSession
	started chan *recordingStream

	mu      sync.Mutex
	atStart []store.Snapshot
	atStop  []store.Snapshot
}

func (s *recordingSink) Start(buf *audio.Buffer) (playback.Stream, error) {
	s.mu.Lock()
	s.atStart = append(s.atStart, s.session.store.Snapshot())
	s.mu.Unlock()

	st := &recordingStream{sink: s, done: make(chan struct{})}
	s.started <- st
	return st, nil
}

func (s *recordingSink) stopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atStop = append(s.atStop, s.session.store.Snapshot())
}

func (s *recordingSink) snapshots() (start, stop []store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Snapshot(nil), s.atStart...), append([]store.Snapshot(nil), s.atStop...)
}

func newSpeakingSession(t *testing.T, p *fakeProvider) (*AuditSession, *recordingSink) {
	t.Helper()
	sink := &recordingSink{started: make(chan *recordingStream, 8)}
	s := newAuditSession(DefaultSessionID, sessionDeps{
		kv:         store.NewMemoryStore(),
		assistant:  NewAssistantClient(p, DefaultHistoryWindow, DefaultVoice),
		recognizer: &fakeRecognizer{text: "deux gardes"},
		mailer:     &fakeMailer{},
		sink:       sink,
	}, SessionOptions{})
	sink.session = s
	s.Init(context.Background())
	t.Cleanup(s.Teardown)
	return s, sink
}

func speakingProvider() *fakeProvider {
	p := newFakeProvider()
	p.speech = pcmPayload
	p.speechErr = nil
	return p
}

func waitStream(t *testing.T, sink *recordingSink) *recordingStream {
	t.Helper()
	select {
	case st := <-sink.started:
		return st
	case <-time.After(5 * time.Second):
		t.Fatal("reply playback never started")
		return nil
	}
}

func TestReplyPlaysAfterItIsCommitted(t *testing.T) {
	p := speakingProvider()
	s, sink := newSpeakingSession(t, p)

	reply, err := s.Send(context.Background(), "Bonjour")
	require.NoError(t, err)
	waitStream(t, sink)

	starts, _ := sink.snapshots()
	require.Len(t, starts, 1)
	assert.Len(t, starts[0].Messages, 3)
	assert.Equal(t, reply.Text, starts[0].Messages[2].Text)
	assert.Equal(t, 1, starts[0].AuditStep)
	assert.Equal(t, []string{reply.Text}, p.spoken)
	assert.True(t, s.State().Playing)
}

func TestSendStopsPlayingReplyBeforeAppending(t *testing.T) {
	s, sink := newSpeakingSession(t, speakingProvider())
	ctx := context.Background()

	_, err := s.Send(ctx, "Premier message")
	require.NoError(t, err)
	first := waitStream(t, sink)

	_, err = s.Send(ctx, "Second message")
	require.NoError(t, err)
	assert.True(t, first.isStopped())

	_, stops := sink.snapshots()
	require.NotEmpty(t, stops)
	assert.Len(t, stops[0].Messages, 3, "playback stops before the new user message is logged")

	second := waitStream(t, sink)
	assert.False(t, second.isStopped())
	assert.Len(t, s.State().Messages, 5)
}

func TestStartDictationStopsPlayback(t *testing.T) {
	s, sink := newSpeakingSession(t, speakingProvider())

	_, err := s.Send(context.Background(), "Bonjour")
	require.NoError(t, err)
	st := waitStream(t, sink)

	require.NoError(t, s.StartDictation())
	assert.True(t, st.isStopped())

	state := s.State()
	assert.False(t, state.Playing)
	assert.True(t, state.Recording)
}

func TestFailedPlaybackLeavesConversationIntact(t *testing.T) {
	p := newFakeProvider()
	p.speechErr = nil
	p.speech = "%%% pas du base64 %%%"
	s, sink := newSpeakingSession(t, p)

	reply, err := s.Send(context.Background(), "Bonjour")
	require.NoError(t, err)
	s.Teardown()

	starts, _ := sink.snapshots()
	assert.Empty(t, starts)
	assert.Len(t, p.spoken, 1)

	state := s.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, reply.Text, state.Messages[2].Text)
	assert.Equal(t, 1, state.AuditStep)
	assert.False(t, state.Playing)
}

func TestSpeechWAV(t *testing.T) {
	s, _ := newSpeakingSession(t, speakingProvider())

	wav, ok, err := s.SpeechWAV(context.Background(), "Bonjour Docteur")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Greater(t, len(wav), 4800)
}

func TestSpeechWAVWithoutAudio(t *testing.T) {
	s, _ := newSpeakingSession(t, newFakeProvider())

	wav, ok, err := s.SpeechWAV(context.Background(), "Bonjour")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, wav)
}
