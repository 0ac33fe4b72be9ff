package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeSessionState     MessageType = "session_state"
	TypeTranscript       MessageType = "transcript"
	TypeAssistantAudio   MessageType = "assistant_audio"
	TypePlaybackStop     MessageType = "playback_stop"
	TypeErrorEvent       MessageType = "error_event"
)

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrInvalidMessage  = errors.New("invalid message")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAudioChunk carries one capture frame of PCM16LE mono audio.
type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type SessionState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
}

type Transcript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Seq       int         `json:"seq"`
	Role      string      `json:"role"`
	Text      string      `json:"text"`
}

// AssistantAudio tells the client to play a buffer at StartMS on the
// session clock, which starts at zero when the socket opens.
type AssistantAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	BufferID    uint64      `json:"buffer_id"`
	StartMS     int64       `json:"start_ms"`
	DurationMS  int64       `json:"duration_ms"`
	SampleRate  int         `json:"sample_rate"`
	PCM16Base64 string      `json:"pcm16_base64"`
}

// PlaybackStop asks the client to hard-stop the listed buffers, or every
// buffer when BufferIDs is empty.
type PlaybackStop struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	BufferIDs []uint64    `json:"buffer_ids,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, fmt.Errorf("%w: client_audio_chunk", ErrInvalidMessage)
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("%w: client_control", ErrInvalidMessage)
		}
		if msg.Action != ActionStart && msg.Action != ActionStop {
			return nil, fmt.Errorf("%w: client_control action %q", ErrInvalidMessage, msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
