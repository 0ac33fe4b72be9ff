// Package live runs one real-time voice session: it streams microphone frames
// to a remote model and routes what comes back to the transcript and the
// playback scheduler.
package live

import (
	"context"
	"errors"

	"github.com/sasa-studio/studio/internal/capture"
)

// State is the controller lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// EventKind tags the inbound event variants.
type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventClosed
	EventErrored
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Message is one inbound server message. Any combination of fields may be set.
type Message struct {
	AssistantText string
	CallerText    string
	// Audio holds PCM16LE mono payloads at 24 kHz, in arrival order.
	Audio        [][]byte
	Interrupted  bool
	TurnComplete bool
}

// Event is the single inbound variant consumed by Dispatch.
type Event struct {
	Kind    EventKind
	Message Message
	Err     error
}

// Conn is an open bidirectional audio connection.
type Conn interface {
	Send(ctx context.Context, f capture.Frame) error
	// Receive blocks for the next message. It returns an error wrapping
	// ErrClosed (or io.EOF) when the remote side closed cleanly.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Connector opens connections to the streaming endpoint.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

var (
	ErrAlreadyActive = errors.New("live session already active")
	ErrStopped       = errors.New("live session stopped during start")
	ErrStartTimeout  = errors.New("live session start timed out")
	ErrClosed        = errors.New("live connection closed")
)
