package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// EncodeWAV serializes the buffer as a 16-bit PCM RIFF/WAVE file.
func EncodeWAV(b *Buffer) []byte {
	channels := b.Format.Channels
	frames := b.Frames()
	dataSize := frames * channels * 2

	var out bytes.Buffer
	out.Grow(44 + dataSize)

	write := func(v any) { binary.Write(&out, binary.LittleEndian, v) }

	out.WriteString("RIFF")
	write(uint32(36 + dataSize))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(b.Format.SampleRate))
	write(uint32(b.Format.SampleRate * channels * 2))
	write(uint16(channels * 2))
	write(uint16(16))

	out.WriteString("data")
	write(uint32(dataSize))
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			write(toInt16(b.Channels[ch][i]))
		}
	}
	return out.Bytes()
}

func toInt16(f float32) int16 {
	v := math.Round(float64(f) * 32768.0)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
