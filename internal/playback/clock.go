package playback

import (
	"sync"
	"time"
)

// WallClock measures elapsed wall time since it was created.
type WallClock struct {
	origin time.Time
	now    func() time.Time
}

func NewWallClock(now func() time.Time) *WallClock {
	if now == nil {
		now = time.Now
	}
	return &WallClock{origin: now(), now: now}
}

func (c *WallClock) Now() time.Duration {
	return c.now().Sub(c.origin)
}

// Origin is the wall time that maps to clock position zero.
func (c *WallClock) Origin() time.Time { return c.origin }

// ManualClock is a Clock advanced explicitly, for tests and offline rendering.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(d time.Duration) {
	c.mu.Lock()
	c.now = d
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
