package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecodeWAVMonoRoundTrip(t *testing.T) {
	pcm := []byte{
		0x00, 0x00,
		0xE8, 0x03, // 1000
		0x18, 0xFC, // -1000
	}
	var wav bytes.Buffer
	if err := WriteWAV(&wav, pcm, 16000, 1); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}
	got, rate, err := DecodeWAV(wav.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Fatalf("sampleRate = %d, want 16000", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm mismatch: got=%v want=%v", got, pcm)
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	// Frame 1: L=1000, R=-1000 => avg=0
	// Frame 2: L=3000, R=1000  => avg=2000
	stereo := []byte{
		0xE8, 0x03, 0x18, 0xFC,
		0xB8, 0x0B, 0xE8, 0x03,
	}
	var wav bytes.Buffer
	if err := WriteWAV(&wav, stereo, 24000, 2); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}
	got, rate, err := DecodeWAV(wav.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 24000 {
		t.Fatalf("sampleRate = %d, want 24000", rate)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	s1 := int16(binary.LittleEndian.Uint16(got[0:2]))
	s2 := int16(binary.LittleEndian.Uint16(got[2:4]))
	if s1 != 0 || s2 != 2000 {
		t.Fatalf("downmix samples = [%d %d], want [0 2000]", s1, s2)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file")); !errors.Is(err, ErrUnsupportedWAV) {
		t.Fatalf("DecodeWAV() error = %v, want ErrUnsupportedWAV", err)
	}
}

func TestResampleLength(t *testing.T) {
	in := make([]float32, 24000)
	for i := range in {
		in[i] = 0.25
	}
	out := Resample(in, 24000, 16000)
	if len(out) != 16000 {
		t.Fatalf("len = %d, want 16000", len(out))
	}
	if out[0] != 0.25 || out[len(out)-1] != 0.25 {
		t.Fatalf("constant signal changed: %v .. %v", out[0], out[len(out)-1])
	}
	if got := Resample(in, 16000, 16000); len(got) != len(in) {
		t.Fatalf("same-rate resample changed length")
	}
}
