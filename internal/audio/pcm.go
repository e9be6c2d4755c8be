// Package audio decodes the raw speech payloads returned by the synthesis
// endpoint into normalized sample buffers.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what the speech endpoint returns: 24 kHz mono.
var SpeechFormat = Format{SampleRate: 24000, Channels: 1}

var (
	ErrEmpty         = errors.New("audio payload is empty")
	ErrOddLength     = errors.New("audio payload is not a whole number of 16-bit samples")
	ErrPartialFrame  = errors.New("audio payload ends with a partial frame")
	ErrInvalidFormat = errors.New("invalid audio format")
)

// Buffer holds one normalized float sample slice per channel.
type Buffer struct {
	Format   Format
	Channels [][]float32
}

func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func (b *Buffer) Duration() time.Duration {
	if b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Decode turns a base64 PCM payload into a Buffer. Every sample is divided by
// 32768 so the result lies in [-1, 1).
func Decode(payload string, format Format) (*Buffer, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidFormat, format)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return DecodePCM(raw, format)
}

func DecodePCM(raw []byte, format Format) (*Buffer, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidFormat, format)
	}
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if len(raw)%2 != 0 {
		return nil, ErrOddLength
	}

	samples := len(raw) / 2
	if samples%format.Channels != 0 {
		return nil, ErrPartialFrame
	}
	frames := samples / format.Channels

	buf := &Buffer{Format: format, Channels: make([][]float32, format.Channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < format.Channels; ch++ {
			offset := (i*format.Channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(raw[offset:]))
			buf.Channels[ch][i] = float32(sample) / 32768.0
		}
	}
	return buf, nil
}
