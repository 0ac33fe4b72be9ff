package live

import (
	"sync"
	"time"
)

// Role identifies who spoke a transcript fragment.
type Role string

const (
	RoleCaller    Role = "caller"
	RoleAssistant Role = "assistant"
)

// DefaultTranscriptLimit is how many entries Recent shows.
const DefaultTranscriptLimit = 5

type TranscriptEntry struct {
	Seq  int       `json:"seq"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcript is an append-only in-memory log of transcription fragments.
type Transcript struct {
	mu      sync.RWMutex
	entries []TranscriptEntry
	limit   int
	now     func() time.Time
}

func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	return &Transcript{limit: limit, now: time.Now}
}

func (t *Transcript) Append(role Role, text string) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := TranscriptEntry{
		Seq:  len(t.entries) + 1,
		Role: role,
		Text: text,
		At:   t.now().UTC(),
	}
	t.entries = append(t.entries, e)
	return e
}

// Recent returns up to limit of the newest entries, oldest first.
func (t *Transcript) Recent() []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	from := len(t.entries) - t.limit
	if from < 0 {
		from = 0
	}
	out := make([]TranscriptEntry, len(t.entries)-from)
	copy(out, t.entries[from:])
	return out
}

// All returns every entry in arrival order.
func (t *Transcript) All() []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
