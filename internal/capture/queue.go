package capture

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// QueueStream is a Stream fed by a producer callback, such as a device
// driver or a network reader. Pushed samples are buffered until Read.
type QueueStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []float32
	closed  bool
	onClose func()
}

// NewQueueStream returns an open stream. onClose, if set, runs once when the
// stream is closed and can release the underlying device.
func NewQueueStream(onClose func()) *QueueStream {
	q := &QueueStream{onClose: onClose}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends samples. It never blocks and drops input after Close.
func (q *QueueStream) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	q.mu.Lock()
	if !q.closed {
		q.buf = append(q.buf, samples...)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *QueueStream) Read(p []float32) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return 0, io.EOF
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *QueueStream) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.buf = nil
	hook := q.onClose
	q.mu.Unlock()
	q.cond.Broadcast()
	if hook != nil {
		hook()
	}
	return nil
}

// Closed reports whether Close has been called.
func (q *QueueStream) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// QueueMicrophone is a Microphone whose samples arrive from outside, such as
// audio chunks read off a client socket. Each Open starts a fresh stream;
// Push feeds whichever stream is current.
type QueueMicrophone struct {
	sampleRate int

	mu     sync.Mutex
	stream *QueueStream
}

func NewQueueMicrophone(sampleRate int) *QueueMicrophone {
	return &QueueMicrophone{sampleRate: sampleRate}
}

func (m *QueueMicrophone) Open(_ context.Context, sampleRate int) (Stream, error) {
	if m.sampleRate > 0 && sampleRate != m.sampleRate {
		return nil, fmt.Errorf("microphone delivers %d Hz, %d Hz requested", m.sampleRate, sampleRate)
	}
	q := NewQueueStream(nil)
	m.mu.Lock()
	if m.stream != nil {
		_ = m.stream.Close()
	}
	m.stream = q
	m.mu.Unlock()
	return q, nil
}

// Push reports false when no stream is open.
func (m *QueueMicrophone) Push(samples []float32) bool {
	m.mu.Lock()
	q := m.stream
	m.mu.Unlock()
	if q == nil || q.Closed() {
		return false
	}
	q.Push(samples)
	return true
}
