// Package capture frames microphone audio into fixed-size PCM16 chunks and
// hands each chunk to a sender as soon as it is complete.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/reliability"
)

// FrameSamples is the number of mono samples per outbound frame.
const FrameSamples = 4096

var (
	ErrPermissionDenied = fmt.Errorf("microphone: %w", reliability.ErrPermission)
	ErrDetached         = errors.New("capture pipeline detached")
)

// Stream is an open microphone stream producing normalized mono samples.
// Read blocks until samples are available; after Close it returns io.EOF.
type Stream interface {
	Read(p []float32) (int, error)
	Close() error
}

// Microphone acquires capture streams. Implementations return an error
// wrapping ErrPermissionDenied when access is refused.
type Microphone interface {
	Open(ctx context.Context, sampleRate int) (Stream, error)
}

// Frame is one encoded capture chunk.
type Frame struct {
	Seq      int
	PCM      []byte
	MIMEType string
}

// Base64 returns the transport encoding of the frame.
func (f Frame) Base64() string {
	return audio.EncodeBase64(f.PCM)
}

// Sender delivers a frame to the active session.
type Sender func(ctx context.Context, f Frame) error

// Framer accumulates samples and emits complete frames in capture order.
type Framer struct {
	size    int
	pending []float32
	seq     int
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size, pending: make([]float32, 0, size)}
}

// Push appends samples and returns every frame completed by them.
func (f *Framer) Push(samples []float32) []Frame {
	var out []Frame
	for len(samples) > 0 {
		n := f.size - len(f.pending)
		if n > len(samples) {
			n = len(samples)
		}
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		if len(f.pending) == f.size {
			f.seq++
			out = append(out, Frame{
				Seq:      f.seq,
				PCM:      audio.FloatToPCM16(f.pending),
				MIMEType: audio.CaptureMIMEType,
			})
			f.pending = f.pending[:0]
		}
	}
	return out
}

// Pipeline pumps one microphone stream into a Sender.
type Pipeline struct {
	stream Stream
	framer *Framer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	attached bool
	detached bool
	err      error
}

func NewPipeline(stream Stream, frameSize int) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		stream: stream,
		framer: NewFramer(frameSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Attach starts pumping frames to send. It may be called once.
func (p *Pipeline) Attach(send Sender) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return ErrDetached
	}
	if p.attached {
		return fmt.Errorf("capture pipeline already attached")
	}
	p.attached = true
	go p.run(p.ctx, send)
	return nil
}

// Detach stops sending and releases the stream. Once it returns, send is
// never called again. Safe to call more than once, attached or not.
func (p *Pipeline) Detach() {
	// Cancel first so a send blocked on the network gives up mu.
	p.cancel()

	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	p.detached = true
	attached := p.attached
	p.mu.Unlock()

	_ = p.stream.Close()
	if !attached {
		close(p.done)
	}
}

// Done is closed when the pump goroutine exits.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Err reports the error that stopped the pump, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pipeline) run(ctx context.Context, send Sender) {
	defer close(p.done)
	buf := make([]float32, p.framer.size)
	for {
		n, err := p.stream.Read(buf)
		if n > 0 {
			for _, f := range p.framer.Push(buf[:n]) {
				if !p.deliver(ctx, send, f) {
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.setErr(err)
			}
			return
		}
	}
}

// deliver holds mu across send so Detach waits out an in-flight frame.
func (p *Pipeline) deliver(ctx context.Context, send Sender, f Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return false
	}
	if err := send(ctx, f); err != nil {
		if ctx.Err() == nil {
			p.err = err
		}
		return false
	}
	return true
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.detached {
		p.err = err
	}
}
