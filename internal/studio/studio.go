package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/gemini"
	"github.com/sasa-studio/studio/internal/memory"
	"github.com/sasa-studio/studio/internal/reliability"
)

// Backend generates panel content. *gemini.Client implements it.
type Backend interface {
	Chat(ctx context.Context, prompt string, search bool) (gemini.ChatReply, error)
	GenerateImage(ctx context.Context, prompt, aspectRatio string, pro bool) (gemini.Media, error)
	GenerateVideo(ctx context.Context, prompt, resolution, aspectRatio string) (gemini.Media, error)
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role    Role            `json:"role"`
	Content string          `json:"content"`
	Sources []gemini.Source `json:"sources,omitempty"`
}

type MediaKind string

const (
	KindImage  MediaKind = "image"
	KindVideo  MediaKind = "video"
	KindSpeech MediaKind = "speech"
)

// Asset is one generated media item. Data is served separately by id.
type Asset struct {
	Kind        MediaKind `json:"kind"`
	Prompt      string    `json:"prompt"`
	MIMEType    string    `json:"mime_type"`
	Size        int       `json:"size"`
	Tier        Tier      `json:"tier,omitempty"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	Resolution  string    `json:"resolution,omitempty"`
	Voice       string    `json:"voice,omitempty"`
	Data        []byte    `json:"-"`
}

type ChatEntry = memory.Entry[ChatMessage]
type AssetEntry = memory.Entry[Asset]

// Service runs the request/response panels for all users.
type Service struct {
	backend Backend
	creds   *Credentials
	chats   memory.Store[ChatMessage]
	assets  memory.Store[Asset]
}

// NewService keeps at most historyLimit records per user and panel store;
// zero keeps everything.
func NewService(backend Backend, creds *Credentials, historyLimit int) *Service {
	return &Service{
		backend: backend,
		creds:   creds,
		chats:   memory.NewInMemoryStore[ChatMessage](historyLimit),
		assets:  memory.NewInMemoryStore[Asset](historyLimit),
	}
}

func (s *Service) Credentials() *Credentials { return s.creds }

// Chat records the prompt, asks the model and records the reply. On failure
// only the prompt stays in history.
func (s *Service) Chat(ctx context.Context, userID string, opts ChatOptions) (ChatEntry, error) {
	if _, err := s.chats.Append(ctx, userID, ChatMessage{Role: RoleUser, Content: opts.Prompt}); err != nil {
		return ChatEntry{}, err
	}
	reply, err := s.backend.Chat(ctx, opts.Prompt, opts.Search)
	if err != nil {
		return ChatEntry{}, s.fail("chat", err)
	}
	return s.chats.Append(ctx, userID, ChatMessage{
		Role:    RoleAssistant,
		Content: reply.Text,
		Sources: reply.Sources,
	})
}

func (s *Service) ChatHistory(ctx context.Context, userID string, limit int) ([]ChatEntry, error) {
	return s.chats.Recent(ctx, userID, limit)
}

// GenerateImage renders one image. The pro tier needs a selected key.
func (s *Service) GenerateImage(ctx context.Context, userID string, opts ImageOptions) (AssetEntry, error) {
	if opts.Tier == TierPro && !s.creds.HasSelected(ctx) {
		return AssetEntry{}, ErrCredentialRequired
	}
	m, err := s.backend.GenerateImage(ctx, opts.Prompt, opts.AspectRatio, opts.Tier == TierPro)
	if err != nil {
		return AssetEntry{}, s.fail("image", err)
	}
	return s.assets.Append(ctx, userID, Asset{
		Kind:        KindImage,
		Prompt:      opts.Prompt,
		MIMEType:    m.MIMEType,
		Size:        len(m.Data),
		Tier:        opts.Tier,
		AspectRatio: opts.AspectRatio,
		Data:        m.Data,
	})
}

// GenerateVideo blocks until the clip is ready. It always needs a selected key.
func (s *Service) GenerateVideo(ctx context.Context, userID string, opts VideoOptions) (AssetEntry, error) {
	if !s.creds.HasSelected(ctx) {
		return AssetEntry{}, ErrCredentialRequired
	}
	m, err := s.backend.GenerateVideo(ctx, opts.Prompt, opts.Resolution, opts.AspectRatio)
	if err != nil {
		return AssetEntry{}, s.fail("video", err)
	}
	return s.assets.Append(ctx, userID, Asset{
		Kind:        KindVideo,
		Prompt:      opts.Prompt,
		MIMEType:    m.MIMEType,
		Size:        len(m.Data),
		AspectRatio: opts.AspectRatio,
		Resolution:  opts.Resolution,
		Data:        m.Data,
	})
}

// Synthesize speaks the text, minus any markup, and stores the result as a
// WAV file. The stored prompt keeps the original text.
func (s *Service) Synthesize(ctx context.Context, userID string, opts SpeechOptions) (AssetEntry, error) {
	text := speakable(opts.Text)
	if text == "" {
		return AssetEntry{}, fmt.Errorf("%w: nothing speakable in text", ErrInvalidOption)
	}
	pcm, err := s.backend.Synthesize(ctx, text, opts.Voice)
	if err != nil {
		return AssetEntry{}, s.fail("speech", err)
	}
	var wav bytes.Buffer
	if err := audio.WriteWAV(&wav, pcm, audio.PlaybackSampleRate, 1); err != nil {
		return AssetEntry{}, fmt.Errorf("speech: %w", err)
	}
	return s.assets.Append(ctx, userID, Asset{
		Kind:     KindSpeech,
		Prompt:   opts.Text,
		MIMEType: "audio/wav",
		Size:     wav.Len(),
		Voice:    opts.Voice,
		Data:     wav.Bytes(),
	})
}

// Assets lists a user's media of one kind, newest first.
func (s *Service) Assets(ctx context.Context, userID string, kind MediaKind, limit int) ([]AssetEntry, error) {
	all, err := s.assets.Recent(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	var out []AssetEntry
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Value.Kind != kind {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Asset returns one asset owned by userID.
func (s *Service) Asset(ctx context.Context, userID, id string) (AssetEntry, error) {
	e, err := s.assets.Get(ctx, id)
	if err != nil {
		return AssetEntry{}, err
	}
	if e.UserID != userID {
		return AssetEntry{}, memory.ErrNotFound
	}
	return e, nil
}

// fail clears the selected key on entitlement errors.
func (s *Service) fail(panel string, err error) error {
	if reliability.IsEntitlement(err) && !errors.Is(err, gemini.ErrNoCredential) {
		log.Printf("studio: %s entitlement error, clearing selected key: %s", panel, reliability.RedactedError(err))
		s.creds.Clear()
	}
	return fmt.Errorf("%s: %w", panel, err)
}
