package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestFloatPCM16RoundTripWithinOneStep(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -1, 0.999, 1, -0.0001, 0.123456}
	out := PCM16ToFloat(FloatToPCM16(in))
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
	const step = 1.0 / 32768
	for i := range in {
		if d := math.Abs(float64(in[i] - out[i])); d > step {
			t.Fatalf("sample %d: got %v, want %v (diff %g > %g)", i, out[i], in[i], d, step)
		}
	}
}

func TestFloatToPCM16Clamps(t *testing.T) {
	pcm := FloatToPCM16([]float32{1.5, -1.5})
	hi := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	lo := int16(binary.LittleEndian.Uint16(pcm[2:4]))
	if hi != math.MaxInt16 {
		t.Fatalf("hi = %d, want %d", hi, math.MaxInt16)
	}
	if lo != math.MinInt16 {
		t.Fatalf("lo = %d, want %d", lo, math.MinInt16)
	}
}

func TestEncodeSamplesBase64RoundTrip(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3}
	buf, err := DecodeBase64Buffer(EncodeSamples(in), CaptureSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodeBase64Buffer() error = %v", err)
	}
	if buf.Frames() != len(in) {
		t.Fatalf("Frames() = %d, want %d", buf.Frames(), len(in))
	}
}

func TestDecodeBufferDuration(t *testing.T) {
	pcm := make([]byte, PlaybackSampleRate*2) // one second, mono
	buf, err := DecodeBuffer(pcm, PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodeBuffer() error = %v", err)
	}
	if buf.Duration() != time.Second {
		t.Fatalf("Duration() = %v, want 1s", buf.Duration())
	}

	stereo, err := DecodeBuffer(pcm, PlaybackSampleRate, 2)
	if err != nil {
		t.Fatalf("DecodeBuffer(stereo) error = %v", err)
	}
	if stereo.Duration() != 500*time.Millisecond {
		t.Fatalf("stereo Duration() = %v, want 500ms", stereo.Duration())
	}
}

func TestDecodeBufferDeinterleave(t *testing.T) {
	pcm := FloatToPCM16([]float32{0.5, -0.5, 0.25, -0.25})
	buf, err := DecodeBuffer(pcm, PlaybackSampleRate, 2)
	if err != nil {
		t.Fatalf("DecodeBuffer() error = %v", err)
	}
	left := buf.Channel(0)
	right := buf.Channel(1)
	if len(left) != 2 || left[0] != 0.5 || left[1] != 0.25 {
		t.Fatalf("left = %v", left)
	}
	if len(right) != 2 || right[0] != -0.5 || right[1] != -0.25 {
		t.Fatalf("right = %v", right)
	}
}

func TestDecodeBufferRejectsOddLength(t *testing.T) {
	_, err := DecodeBuffer([]byte{1, 2, 3}, PlaybackSampleRate, 1)
	if !errors.Is(err, ErrOddLength) {
		t.Fatalf("error = %v, want ErrOddLength", err)
	}
}

func TestDecodeBase64RejectsGarbage(t *testing.T) {
	if _, err := DecodeBase64("!!not-base64!!"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	buf := Buffer{Samples: make([]float32, 240), SampleRate: PlaybackSampleRate, Channels: 1}
	wav, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	if len(wav) != 44+480 {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+480)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("unexpected WAV header: %q", wav[:44])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != PlaybackSampleRate {
		t.Fatalf("sample rate = %d, want %d", rate, PlaybackSampleRate)
	}
}
