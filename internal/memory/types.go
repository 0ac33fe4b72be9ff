// Package memory keeps per-user panel history in process memory. Nothing is
// persisted; history disappears with the process.
package memory

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("history record not found")

// Entry wraps one stored value with its identity.
type Entry[T any] struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Value     T         `json:"value"`
}

// Store appends and reads history for one panel.
type Store[T any] interface {
	Append(ctx context.Context, userID string, value T) (Entry[T], error)
	Recent(ctx context.Context, userID string, limit int) ([]Entry[T], error)
	Get(ctx context.Context, id string) (Entry[T], error)
}
