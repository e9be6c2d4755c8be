// Package playback turns synthesized speech into a single active audio stream
// per session.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"doulia.com/workflow-audit/internal/audio"
)

// ErrAlreadyStopped is returned by Stream.Stop once the stream has ended.
var ErrAlreadyStopped = errors.New("stream already stopped")

// Stream is one playing buffer. Done is closed when playback ends naturally or
// is stopped.
type Stream interface {
	Stop() error
	Done() <-chan struct{}
}

// Sink starts playback of a decoded buffer without blocking.
type Sink interface {
	Start(buf *audio.Buffer) (Stream, error)
}

// Synthesizer returns base64 PCM for text, or false when no audio is available.
type Synthesizer interface {
	GenerateSpeech(ctx context.Context, text string) (string, bool)
}

// Player keeps at most one stream active. A Stop, or a newer Play, also voids
// any Play still waiting on synthesis.
type Player struct {
	synth  Synthesizer
	sink   Sink
	format audio.Format

	mu      sync.Mutex
	current Stream
	gen     uint64
}

func NewPlayer(synth Synthesizer, sink Sink) *Player {
	return &Player{synth: synth, sink: sink, format: audio.SpeechFormat}
}

// Play stops the current stream, synthesizes text and starts playing it.
// Missing audio is not an error.
func (p *Player) Play(ctx context.Context, text string) error {
	p.mu.Lock()
	p.stopLocked()
	gen := p.gen
	p.mu.Unlock()

	payload, ok := p.synth.GenerateSpeech(ctx, text)
	if !ok {
		log.Debug("No audio returned for reply, skipping playback")
		return nil
	}

	buf, err := audio.Decode(payload, p.format)
	if err != nil {
		return fmt.Errorf("failed to decode speech audio: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		log.Debug("Playback superseded before it started")
		return nil
	}

	stream, err := p.sink.Start(buf)
	if err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	p.current = stream
	go p.watch(stream)
	return nil
}

func (p *Player) watch(stream Stream) {
	<-stream.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == stream {
		p.current = nil
	}
}

// Stop is safe to call at any time, any number of times.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	p.gen++
	if p.current == nil {
		return
	}
	if err := p.current.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		log.Warn("Failed to stop playback", "error", err)
	}
	p.current = nil
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
