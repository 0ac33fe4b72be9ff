package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// InMemoryStore is an in-process history store. IDs are ULIDs, so they sort
// by creation time.
type InMemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string][]Entry[T]
	byID    map[string]Entry[T]
	// perUser caps entries kept per user; zero keeps everything.
	perUser int
	now     func() time.Time
}

func NewInMemoryStore[T any](perUser int) *InMemoryStore[T] {
	return &InMemoryStore[T]{
		records: make(map[string][]Entry[T]),
		byID:    make(map[string]Entry[T]),
		perUser: perUser,
		now:     time.Now,
	}
}

func (s *InMemoryStore[T]) Append(_ context.Context, userID string, value T) (Entry[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry[T]{
		ID:        ulid.Make().String(),
		UserID:    userID,
		CreatedAt: s.now().UTC(),
		Value:     value,
	}
	arr := append(s.records[userID], e)
	if s.perUser > 0 && len(arr) > s.perUser {
		for _, old := range arr[:len(arr)-s.perUser] {
			delete(s.byID, old.ID)
		}
		arr = append([]Entry[T](nil), arr[len(arr)-s.perUser:]...)
	}
	s.records[userID] = arr
	s.byID[e.ID] = e
	return e, nil
}

// Recent returns up to limit newest entries for userID, oldest first.
func (s *InMemoryStore[T]) Recent(_ context.Context, userID string, limit int) ([]Entry[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Entry[T], 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore[T]) Get(_ context.Context, id string) (Entry[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry[T]{}, ErrNotFound
	}
	return e, nil
}
