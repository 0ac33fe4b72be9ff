package main

import (
	"testing"
	"time"
)

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://studio.example.com/base/", "abc 1")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	want := "wss://studio.example.com/base/v1/live/session/ws?session_id=abc+1"
	if got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}
	if _, err := wsURLForSession("ftp://studio.example.com", "x"); err == nil {
		t.Fatalf("wsURLForSession(ftp) error = nil, want error")
	}
}

func TestSplitTexts(t *testing.T) {
	if got := splitTexts(""); len(got) != len(defaultUtterances) {
		t.Fatalf("splitTexts(\"\") = %d items, want defaults", len(got))
	}
	got := splitTexts(" one | |two ")
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("splitTexts() = %q", got)
	}
}

func TestPercentiles(t *testing.T) {
	var ds []time.Duration
	for i := 1; i <= 20; i++ {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	p50, p95 := percentiles(ds)
	if p50 != 10*time.Millisecond {
		t.Fatalf("p50 = %s, want 10ms", p50)
	}
	if p95 != 19*time.Millisecond {
		t.Fatalf("p95 = %s, want 19ms", p95)
	}
	if a, b := percentiles(nil); a != 0 || b != 0 {
		t.Fatalf("percentiles(nil) = %s %s", a, b)
	}
}

func TestAwaitTurnSettles(t *testing.T) {
	audioCh := make(chan time.Time, 4)
	first := time.Now()
	audioCh <- first
	audioCh <- first.Add(time.Millisecond)
	got, err := awaitTurn(audioCh, make(chan error), time.Second, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("awaitTurn() error = %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("awaitTurn() = %v, want first audio time", got)
	}
}
