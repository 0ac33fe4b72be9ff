package playback

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sasa-studio/studio/internal/audio"
)

type fakeVoice struct {
	mu      sync.Mutex
	stopped bool
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

func (v *fakeVoice) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

type play struct {
	id    uint64
	at    time.Duration
	dur   time.Duration
	voice *fakeVoice
	done  func()
}

type fakeSink struct {
	mu    sync.Mutex
	plays []play
	err   error
}

func (s *fakeSink) Play(id uint64, buf audio.Buffer, at time.Duration, done func()) (Voice, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := &fakeVoice{}
	s.mu.Lock()
	s.plays = append(s.plays, play{id: id, at: at, dur: buf.Duration(), voice: v, done: done})
	s.mu.Unlock()
	return v, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func silence(d time.Duration) audio.Buffer {
	frames := int(int64(d) * audio.PlaybackSampleRate / int64(time.Second))
	return audio.Buffer{Samples: make([]float32, frames), SampleRate: audio.PlaybackSampleRate, Channels: 1}
}

func TestSchedulerGaplessSequence(t *testing.T) {
	clock := &ManualClock{}
	t0 := seconds(3)
	clock.Set(t0)
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	for _, d := range []time.Duration{seconds(1), seconds(0.5), seconds(2)} {
		if _, err := s.Enqueue(silence(d)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	want := []time.Duration{t0, t0 + seconds(1), t0 + seconds(1.5)}
	if len(sink.plays) != len(want) {
		t.Fatalf("plays = %d, want %d", len(sink.plays), len(want))
	}
	for i, p := range sink.plays {
		if p.at != want[i] {
			t.Fatalf("buffer %d start = %v, want %v", i+1, p.at, want[i])
		}
	}
	if s.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", s.Pending())
	}
}

func TestSchedulerInterruptRestartsAtNow(t *testing.T) {
	clock := &ManualClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	if _, err := s.Enqueue(silence(seconds(2))); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	clock.Advance(seconds(0.3))

	if n := s.Interrupt(); n != 1 {
		t.Fatalf("Interrupt() stopped = %d, want 1", n)
	}
	if !sink.plays[0].voice.isStopped() {
		t.Fatalf("buffer1 should be stopped at the interruption instant")
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}

	got, err := s.Enqueue(silence(seconds(1)))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if got.Start != seconds(0.3) {
		t.Fatalf("buffer2 start = %v, want %v", got.Start, seconds(0.3))
	}
}

func TestSchedulerNeverStartsInThePast(t *testing.T) {
	clock := &ManualClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	if _, err := s.Enqueue(silence(seconds(0.5))); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	clock.Set(seconds(4))
	got, err := s.Enqueue(silence(seconds(0.5)))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if got.Start != seconds(4) {
		t.Fatalf("start = %v, want %v", got.Start, seconds(4))
	}
}

func TestSchedulerStartsAreOrderedAndNonOverlapping(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		clock := &ManualClock{}
		sink := &fakeSink{}
		s := NewScheduler(clock, sink)

		var prev Scheduled
		for i := 0; i < 40; i++ {
			clock.Advance(time.Duration(rng.Int63n(int64(800 * time.Millisecond))))
			d := time.Duration(1+rng.Int63n(int64(600*time.Millisecond))) / time.Millisecond * time.Millisecond
			if d <= 0 {
				d = time.Millisecond
			}
			now := clock.Now()
			got, err := s.Enqueue(silence(d))
			if err != nil {
				t.Fatalf("trial %d Enqueue() error = %v", trial, err)
			}
			if got.Start < now {
				t.Fatalf("trial %d buffer %d start %v before now %v", trial, i, got.Start, now)
			}
			if i > 0 && got.Start < prev.End {
				t.Fatalf("trial %d buffer %d start %v overlaps previous end %v", trial, i, got.Start, prev.End)
			}
			prev = got
		}
	}
}

func TestSchedulerCompletionDeregisters(t *testing.T) {
	clock := &ManualClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	if _, err := s.Enqueue(silence(seconds(1))); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := s.Enqueue(silence(seconds(1))); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	sink.plays[0].done()
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", s.Pending())
	}
	if s.Interrupt() != 1 {
		t.Fatalf("Interrupt should only stop the unfinished buffer")
	}
	if sink.plays[0].voice.isStopped() {
		t.Fatalf("finished buffer must not be stopped")
	}
}

func TestSchedulerRejectsEmptyBuffer(t *testing.T) {
	s := NewScheduler(&ManualClock{}, &fakeSink{})
	if _, err := s.Enqueue(audio.Buffer{SampleRate: audio.PlaybackSampleRate}); !errors.Is(err, ErrEmptyBuffer) {
		t.Fatalf("error = %v, want ErrEmptyBuffer", err)
	}
}

func TestSchedulerSinkErrorLeavesCursor(t *testing.T) {
	sink := &fakeSink{err: errors.New("device gone")}
	s := NewScheduler(&ManualClock{}, sink)
	if _, err := s.Enqueue(silence(seconds(1))); err == nil {
		t.Fatalf("expected sink error")
	}
	if s.Cursor() != 0 {
		t.Fatalf("Cursor() = %v, want 0", s.Cursor())
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
}

func TestWallClockUsesInjectedNow(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	c := NewWallClock(func() time.Time { return now })
	now = base.Add(1500 * time.Millisecond)
	if got := c.Now(); got != 1500*time.Millisecond {
		t.Fatalf("Now() = %v, want 1.5s", got)
	}
}
