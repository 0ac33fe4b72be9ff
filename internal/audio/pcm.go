// Package audio converts between float samples, PCM16LE bytes and the base64
// strings used on the wire.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	// CaptureSampleRate is the rate of microphone audio sent upstream.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of model audio received from upstream.
	PlaybackSampleRate = 24000
	// CaptureMIMEType tags outbound PCM chunks.
	CaptureMIMEType = "audio/pcm;rate=16000"

	bytesPerSample = 2
)

var ErrOddLength = errors.New("pcm16 payload has odd byte length")

// Buffer is decoded PCM audio. Samples are interleaved when Channels > 1.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	ch := b.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(b.Samples) / ch
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Channel returns a copy of one channel's samples.
func (b Buffer) Channel(idx int) []float32 {
	ch := b.Channels
	if ch <= 0 {
		ch = 1
	}
	if idx < 0 || idx >= ch {
		return nil
	}
	out := make([]float32, b.Frames())
	for i := range out {
		out[i] = b.Samples[i*ch+idx]
	}
	return out
}

// PCM16 re-encodes the buffer as little-endian signed 16-bit PCM.
func (b Buffer) PCM16() []byte {
	return FloatToPCM16(b.Samples)
}

// FloatToPCM16 scales normalized samples by 32768 and clamps to the int16 range.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := float64(s) * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		n := int16(v)
		out[i*2] = byte(n)
		out[i*2+1] = byte(uint16(n) >> 8)
	}
	return out
}

// PCM16ToFloat decodes little-endian signed 16-bit PCM into [-1, 1) samples.
// A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/bytesPerSample)
	for i := range out {
		n := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = float32(n) / 32768
	}
	return out
}

// DecodeBuffer turns a raw PCM16LE byte stream into a Buffer.
func DecodeBuffer(pcm []byte, sampleRate, channels int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}
	if len(pcm)%bytesPerSample != 0 {
		return Buffer{}, ErrOddLength
	}
	samples := PCM16ToFloat(pcm)
	// Drop a partial trailing frame so every channel has the same length.
	samples = samples[:len(samples)-len(samples)%channels]
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// EncodeBase64 encodes raw bytes for transport.
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeBase64 decodes a transport string back into raw bytes.
func DecodeBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return raw, nil
}

// EncodeSamples converts float samples to PCM16 and base64-encodes them.
func EncodeSamples(samples []float32) string {
	return EncodeBase64(FloatToPCM16(samples))
}

// DecodeBase64Buffer decodes a base64 PCM16 payload into a Buffer.
func DecodeBase64Buffer(payload string, sampleRate, channels int) (Buffer, error) {
	raw, err := DecodeBase64(payload)
	if err != nil {
		return Buffer{}, err
	}
	return DecodeBuffer(raw, sampleRate, channels)
}

// DurationOfPCM16 returns the playback length of a mono PCM16 byte slice.
func DurationOfPCM16(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n/bytesPerSample) * time.Second / time.Duration(sampleRate)
}
