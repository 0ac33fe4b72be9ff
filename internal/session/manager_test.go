package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s, err := m.Create("u1", "Kore")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Voice != "Kore" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded || ended.EndedAt.IsZero() {
		t.Fatalf("ended session = %+v", ended)
	}
	if err := m.Touch(s.ID); !errors.Is(err, ErrEnded) {
		t.Fatalf("Touch() after End error = %v, want ErrEnded", err)
	}
}

func TestManagerOneActiveSessionPerUser(t *testing.T) {
	m := NewManager(time.Minute)
	first, err := m.Create("u1", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Create("u1", ""); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Create() error = %v, want ErrAlreadyActive", err)
	}
	if _, err := m.Create("u2", ""); err != nil {
		t.Fatalf("Create() for other user error = %v", err)
	}
	if _, err := m.End(first.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, err := m.Create("u1", ""); err != nil {
		t.Fatalf("Create() after End error = %v", err)
	}
	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", got)
	}
}

func TestManagerCounters(t *testing.T) {
	m := NewManager(time.Minute)
	s, _ := m.Create("u1", "")
	_ = m.SetLiveState(s.ID, "active")
	_ = m.RecordAudio(s.ID)
	_ = m.RecordAudio(s.ID)
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LiveState != "active" || got.BuffersScheduled != 2 || got.InterruptionCount != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if err := m.Interrupt("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Interrupt(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s, _ := m.Create("u1", "")

	var mu sync.Mutex
	var expired []string
	m.SetExpireHook(func(s *Session) {
		mu.Lock()
		expired = append(expired, s.ID)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	n := len(expired)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expire hook calls = %d, want 1", n)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after retention error = %v, want ErrNotFound", err)
	}
}
