// Package device binds capture and playback to the host sound card: malgo
// for the microphone, oto for the speaker.
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/sasa-studio/studio/internal/capture"
)

// Microphone opens the default capture device as mono float32 audio.
type Microphone struct {
	ctx *malgo.AllocatedContext
}

func NewMicrophone() (*Microphone, error) {
	cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Microphone{ctx: ctx}, nil
}

func (m *Microphone) Open(ctx context.Context, sampleRate int) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	var dev *malgo.Device
	stream := capture.NewQueueStream(func() {
		if dev != nil {
			_ = dev.Stop()
			dev.Uninit()
		}
	})
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			stream.Push(samplesFromF32(in))
		},
	}

	d, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, openErr(err)
	}
	dev = d
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, openErr(err)
	}
	return stream, nil
}

// Close releases the audio context. Streams must be closed first.
func (m *Microphone) Close() error {
	if err := m.ctx.Uninit(); err != nil {
		return err
	}
	m.ctx.Free()
	return nil
}

func openErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	}
	return fmt.Errorf("open capture device: %w", err)
}

func samplesFromF32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
