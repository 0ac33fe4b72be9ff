package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sasa-studio/studio/internal/reliability"
)

// ErrCredentialRequired means the panel needs a user-selected key first.
var ErrCredentialRequired = fmt.Errorf("select an api key first: %w", reliability.ErrEntitlement)

// Credentials holds the user-selected API key, falling back to the key the
// service was started with. It implements gemini.KeySource.
type Credentials struct {
	fallback string

	mu       sync.RWMutex
	selected string
}

func NewCredentials(fallback string) *Credentials {
	return &Credentials{fallback: strings.TrimSpace(fallback)}
}

// HasSelected reports whether a key was explicitly selected.
func (c *Credentials) HasSelected(context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected != ""
}

func (c *Credentials) Select(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: api key is empty", ErrInvalidOption)
	}
	c.mu.Lock()
	c.selected = key
	c.mu.Unlock()
	return nil
}

// Clear drops the selection so clients are prompted to pick a key again.
func (c *Credentials) Clear() {
	c.mu.Lock()
	c.selected = ""
	c.mu.Unlock()
}

func (c *Credentials) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected != "" {
		return c.selected
	}
	return c.fallback
}
