package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	text   string
	err    error
	block  bool
	locale string
	calls  chan struct{}
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	f.locale = locale
	if f.calls != nil {
		f.calls <- struct{}{}
	}
	if f.block {
		<-ctx.Done()
		return "trop tard", ctx.Err()
	}
	return f.text, f.err
}

func TestStartTwiceIsRejected(t *testing.T) {
	a := NewAdapter(&fakeRecognizer{}, "fr-FR", nil)

	require.NoError(t, a.Start())
	assert.Equal(t, Listening, a.State())
	assert.ErrorIs(t, a.Start(), ErrAlreadyListening)
}

func TestSubmitEmitsTranscriptOnce(t *testing.T) {
	var got []string
	rec := &fakeRecognizer{text: "  les dossiers papier  "}
	a := NewAdapter(rec, "fr-FR", func(s string) { got = append(got, s) })

	require.NoError(t, a.Start())
	text, err := a.Submit(context.Background(), []byte("audio"), "audio/webm")

	require.NoError(t, err)
	assert.Equal(t, "les dossiers papier", text)
	assert.Equal(t, []string{"les dossiers papier"}, got)
	assert.Equal(t, Idle, a.State())
	assert.Equal(t, "fr-FR", rec.locale)

	_, err = a.Submit(context.Background(), []byte("audio"), "audio/webm")
	assert.ErrorIs(t, err, ErrNotListening)
	assert.Len(t, got, 1)
}

func TestSubmitErrorOrSilenceEmitsNothing(t *testing.T) {
	tests := []struct {
		name string
		rec  *fakeRecognizer
	}{
		{"platform error", &fakeRecognizer{err: errors.New("network")}},
		{"no speech", &fakeRecognizer{text: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitted := false
			a := NewAdapter(tt.rec, "fr-FR", func(string) { emitted = true })
			require.NoError(t, a.Start())

			text, err := a.Submit(context.Background(), []byte("audio"), "audio/wav")

			assert.NoError(t, err)
			assert.Empty(t, text)
			assert.False(t, emitted)
			assert.Equal(t, Idle, a.State())
		})
	}
}

func TestStopDiscardsInFlightRecognition(t *testing.T) {
	emitted := false
	rec := &fakeRecognizer{block: true, calls: make(chan struct{}, 1)}
	a := NewAdapter(rec, "fr-FR", func(string) { emitted = true })
	require.NoError(t, a.Start())

	done := make(chan string, 1)
	go func() {
		text, _ := a.Submit(context.Background(), []byte("audio"), "audio/wav")
		done <- text
	}()

	<-rec.calls
	a.Stop()

	select {
	case text := <-done:
		assert.Empty(t, text)
	case <-time.After(2 * time.Second):
		t.Fatal("recognition was not cancelled")
	}
	assert.False(t, emitted)
	assert.Equal(t, Idle, a.State())
}

func TestStopThenRestart(t *testing.T) {
	a := NewAdapter(&fakeRecognizer{text: "ok"}, "fr-FR", nil)
	a.Stop()
	assert.Equal(t, Idle, a.State())

	require.NoError(t, a.Start())
	a.Stop()
	require.NoError(t, a.Start())
}

func TestJoinDraft(t *testing.T) {
	assert.Equal(t, "bonjour", JoinDraft("", "bonjour"))
	assert.Equal(t, "bonjour docteur", JoinDraft("bonjour", "docteur"))
	assert.Equal(t, "bonjour", JoinDraft("bonjour", ""))
}
