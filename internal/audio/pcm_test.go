package audio

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestDecodeMono(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(pcm(0, 16384, -32768, 32767, -1))

	buf, err := Decode(payload, SpeechFormat)
	require.NoError(t, err)

	require.Len(t, buf.Channels, 1)
	assert.Equal(t, []float32{0, 0.5, -1, 32767.0 / 32768.0, -1.0 / 32768.0}, buf.Channels[0])
	assert.Equal(t, 5, buf.Frames())
}

func TestDecodeStereoDeinterleaves(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(pcm(100, -100, 200, -200))

	buf, err := Decode(payload, Format{SampleRate: 8000, Channels: 2})
	require.NoError(t, err)

	assert.Equal(t, []float32{100.0 / 32768, 200.0 / 32768}, buf.Channels[0])
	assert.Equal(t, []float32{-100.0 / 32768, -200.0 / 32768}, buf.Channels[1])
}

func TestDecodeDuration(t *testing.T) {
	raw := make([]byte, 2*24000)
	buf, err := DecodePCM(raw, SpeechFormat)
	require.NoError(t, err)
	assert.Equal(t, time.Second, buf.Duration())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		format  Format
		err     error
	}{
		{"empty", "", SpeechFormat, ErrEmpty},
		{"odd length", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), SpeechFormat, ErrOddLength},
		{"partial stereo frame", base64.StdEncoding.EncodeToString(pcm(1, 2, 3)), Format{SampleRate: 24000, Channels: 2}, ErrPartialFrame},
		{"zero channels", base64.StdEncoding.EncodeToString(pcm(1)), Format{SampleRate: 24000}, ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Decode(tt.payload, tt.format)
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, buf)
		})
	}

	_, err := Decode("not base64!!", SpeechFormat)
	assert.Error(t, err)
}

func TestEncodeWAV(t *testing.T) {
	samples := []int16{0, 16384, -32768, 32767}
	buf, err := DecodePCM(pcm(samples...), SpeechFormat)
	require.NoError(t, err)

	wav := EncodeWAV(buf)

	require.Len(t, wav, 44+len(samples)*2)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(len(samples)*2), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm(samples...), wav[44:])
}
