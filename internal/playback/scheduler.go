// Package playback schedules decoded audio buffers for gapless sequential
// playback on a clock it does not own, with a hard-stop interrupt for barge-in.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sasa-studio/studio/internal/audio"
)

var ErrEmptyBuffer = errors.New("empty audio buffer")

// Clock reports the current position of the output device.
type Clock interface {
	Now() time.Duration
}

// Voice is a handle to one scheduled buffer.
type Voice interface {
	Stop()
}

// Sink plays buffers at absolute clock positions. done must be called once
// when the buffer finishes playing on its own; it is not called after Stop.
type Sink interface {
	Play(id uint64, buf audio.Buffer, at time.Duration, done func()) (Voice, error)
}

// Scheduled describes where a buffer landed on the clock.
type Scheduled struct {
	ID    uint64
	Start time.Duration
	End   time.Duration
}

// Scheduler owns the playback cursor and the set of scheduled buffers.
type Scheduler struct {
	clock Clock
	sink  Sink

	mu     sync.Mutex
	next   time.Duration
	seq    uint64
	active map[uint64]Voice
}

func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		active: make(map[uint64]Voice),
	}
}

// Enqueue schedules buf at max(cursor, now) and advances the cursor by its
// duration. Calls must arrive in payload order.
func (s *Scheduler) Enqueue(buf audio.Buffer) (Scheduled, error) {
	d := buf.Duration()
	if d <= 0 {
		return Scheduled{}, ErrEmptyBuffer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.next
	if now := s.clock.Now(); now > start {
		start = now
	}
	s.seq++
	id := s.seq
	v, err := s.sink.Play(id, buf, start, func() { s.release(id) })
	if err != nil {
		return Scheduled{}, fmt.Errorf("schedule buffer %d: %w", id, err)
	}
	s.active[id] = v
	s.next = start + d
	return Scheduled{ID: id, Start: start, End: s.next}, nil
}

// Interrupt hard-stops every scheduled buffer and rewinds the cursor to now,
// so the next Enqueue starts immediately. It returns how many were stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.active)
	for id, v := range s.active {
		v.Stop()
		delete(s.active, id)
	}
	s.next = s.clock.Now()
	return n
}

// Pending returns the number of buffers scheduled and not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the playback cursor before it is clamped to the clock.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}
