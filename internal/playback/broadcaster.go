package playback

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"doulia.com/workflow-audit/internal/audio"
)

const listenerQueue = 16

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type listener struct {
	send chan frame
}

// Control is the JSON text frame sent around each audio frame.
type Control struct {
	Type       string `json:"type"` // "start" or "stop"
	ID         uint64 `json:"id"`
	SampleRate int    `json:"sample_rate,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Broadcaster is a Sink that plays on every websocket listener of a session:
// a start control frame, the WAV bytes as one binary frame, and a stop control
// frame if the stream is cut short.
type Broadcaster struct {
	originPatterns []string

	mu        sync.Mutex
	listeners map[*listener]struct{}
	nextID    atomic.Uint64
}

func NewBroadcaster(originPatterns []string) *Broadcaster {
	return &Broadcaster{
		originPatterns: originPatterns,
		listeners:      make(map[*listener]struct{}),
	}
}

func (b *Broadcaster) Start(buf *audio.Buffer) (Stream, error) {
	wav := audio.EncodeWAV(buf)
	s := &broadcastStream{
		b:    b,
		id:   b.nextID.Add(1),
		done: make(chan struct{}),
	}

	b.publishControl(Control{
		Type:       "start",
		ID:         s.id,
		SampleRate: buf.Format.SampleRate,
		DurationMs: buf.Duration().Milliseconds(),
	})
	b.publish(frame{typ: websocket.MessageBinary, data: wav})

	s.timer = time.AfterFunc(buf.Duration(), s.finish)
	return s, nil
}

func (b *Broadcaster) publishControl(c Control) {
	data, err := json.Marshal(c)
	if err != nil {
		log.Warn("Failed to encode playback control", "error", err)
		return
	}
	b.publish(frame{typ: websocket.MessageText, data: data})
}

func (b *Broadcaster) publish(f frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for l := range b.listeners {
		select {
		case l.send <- f:
		default:
			log.Warn("Playback listener is not keeping up, dropping frame")
		}
	}
}

func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// ServeHTTP upgrades the request and streams frames until the peer leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.originPatterns,
	})
	if err != nil {
		log.Warn("Playback websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	l := &listener{send: make(chan frame, listenerQueue)}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.listeners, l)
		b.mu.Unlock()
	}()

	// Listeners never send; CloseRead notices when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.send:
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, f.typ, f.data)
			cancel()
			if err != nil {
				log.Debug("Playback websocket write failed", "error", err)
				return
			}
		}
	}
}

type broadcastStream struct {
	b     *Broadcaster
	id    uint64
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

func (s *broadcastStream) Done() <-chan struct{} {
	return s.done
}

func (s *broadcastStream) finish() {
	s.once.Do(func() { close(s.done) })
}

func (s *broadcastStream) Stop() error {
	stopped := false
	s.once.Do(func() {
		stopped = true
		s.timer.Stop()
		s.b.publishControl(Control{Type: "stop", ID: s.id})
		close(s.done)
	})
	if !stopped {
		return ErrAlreadyStopped
	}
	return nil
}
