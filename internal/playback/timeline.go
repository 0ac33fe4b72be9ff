package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/sasa-studio/studio/internal/audio"
)

// Timeline mixes scheduled buffers into one PCM16LE mono stream. It is both a
// Sink and the Clock: position advances only as the output device pulls
// bytes through Read, so the schedule follows what is actually played.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64 // frames consumed by Read
	voices map[uint64]*timelineVoice
}

type timelineVoice struct {
	tl      *Timeline
	id      uint64
	start   int64
	samples []float32
	done    func()
}

func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	return &Timeline{rate: sampleRate, voices: make(map[uint64]*timelineVoice)}
}

// SampleRate is the output rate Read produces.
func (t *Timeline) SampleRate() int { return t.rate }

func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameToDuration(t.pos)
}

func (t *Timeline) Play(id uint64, buf audio.Buffer, at time.Duration, done func()) (Voice, error) {
	if buf.SampleRate != t.rate {
		return nil, fmt.Errorf("timeline rate %d cannot play %d Hz buffer", t.rate, buf.SampleRate)
	}
	samples := buf.Samples
	if buf.Channels > 1 {
		samples = downmix(buf)
	}
	v := &timelineVoice{tl: t, id: id, samples: samples, done: done}

	t.mu.Lock()
	defer t.mu.Unlock()
	v.start = t.durationToFrame(at)
	if v.start < t.pos {
		v.start = t.pos
	}
	t.voices[id] = v
	return v, nil
}

// Active returns the number of voices not yet finished or stopped.
func (t *Timeline) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Read renders the next len(p)/2 frames. It always fills p, writing silence
// where nothing is scheduled.
func (t *Timeline) Read(p []byte) (int, error) {
	frames := len(p) / 2
	mix := make([]float32, frames)

	var finished []func()
	t.mu.Lock()
	from := t.pos
	to := from + int64(frames)
	for id, v := range t.voices {
		end := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(end, to)
		for f := lo; f < hi; f++ {
			mix[f-from] += v.samples[f-v.start]
		}
		if end <= to {
			delete(t.voices, id)
			if v.done != nil {
				finished = append(finished, v.done)
			}
		}
	}
	t.pos = to
	t.mu.Unlock()

	copy(p, audio.FloatToPCM16(mix))
	for _, done := range finished {
		done()
	}
	return frames * 2, nil
}

func (v *timelineVoice) Stop() {
	v.tl.mu.Lock()
	delete(v.tl.voices, v.id)
	v.tl.mu.Unlock()
}

func (t *Timeline) frameToDuration(f int64) time.Duration {
	return time.Duration(f) * time.Second / time.Duration(t.rate)
}

// durationToFrame rounds to the nearest frame. Buffer durations truncate, so
// a cursor built from them can sit a fraction of a frame short of the end of
// the previous buffer.
func (t *Timeline) durationToFrame(d time.Duration) int64 {
	return (int64(d)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

func downmix(buf audio.Buffer) []float32 {
	out := make([]float32, buf.Frames())
	for i := range out {
		var sum float32
		for c := 0; c < buf.Channels; c++ {
			sum += buf.Samples[i*buf.Channels+c]
		}
		out[i] = sum / float32(buf.Channels)
	}
	return out
}
