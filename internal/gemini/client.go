// Package gemini talks to the hosted Gemini API for every studio panel and
// for the bidirectional live audio session.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/sasa-studio/studio/internal/reliability"
)

const (
	DefaultChatModel       = "gemini-3-flash-preview"
	DefaultImageModel      = "gemini-2.5-flash-image"
	DefaultProImageModel   = "gemini-3-pro-image-preview"
	DefaultVideoModel      = "veo-3.1-fast-generate-preview"
	DefaultSpeechModel     = "gemini-2.5-flash-preview-tts"
	DefaultLiveModel       = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultChatInstruction = "You are a creative assistant in Sasa Studio. If search is enabled, synthesize web results accurately."
	DefaultLiveInstruction = "You are a lively voice assistant in Sasa Studio. Be conversational and warm."
)

// ErrNoCredential means no API key is configured or selected.
var ErrNoCredential = fmt.Errorf("no api key selected: %w", reliability.ErrEntitlement)

// ErrNoMedia means a generation call succeeded without returning media.
var ErrNoMedia = errors.New("model returned no media")

// KeySource yields the API key to use for the next request.
type KeySource interface {
	APIKey() string
}

type Config struct {
	APIKey string

	ChatModel       string
	ChatInstruction string
	ImageModel      string
	ProImageModel   string
	VideoModel      string
	SpeechModel     string
	LiveModel       string
	LiveInstruction string
	LiveVoice       string

	VideoPollInterval time.Duration
	HTTPClient        *http.Client
}

func DefaultConfig() Config {
	return Config{
		ChatModel:         DefaultChatModel,
		ChatInstruction:   DefaultChatInstruction,
		ImageModel:        DefaultImageModel,
		ProImageModel:     DefaultProImageModel,
		VideoModel:        DefaultVideoModel,
		SpeechModel:       DefaultSpeechModel,
		LiveModel:         DefaultLiveModel,
		LiveInstruction:   DefaultLiveInstruction,
		VideoPollInterval: 10 * time.Second,
	}
}

// Client is safe for concurrent use. It keeps one SDK client per API key.
type Client struct {
	cfg  Config
	keys KeySource

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New returns a Client. keys may be nil, in which case cfg.APIKey is used.
func New(cfg Config, keys KeySource) *Client {
	def := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.ChatInstruction == "" {
		cfg.ChatInstruction = def.ChatInstruction
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.ProImageModel == "" {
		cfg.ProImageModel = def.ProImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = def.VideoModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = def.SpeechModel
	}
	if cfg.LiveModel == "" {
		cfg.LiveModel = def.LiveModel
	}
	if cfg.LiveInstruction == "" {
		cfg.LiveInstruction = def.LiveInstruction
	}
	if cfg.VideoPollInterval <= 0 {
		cfg.VideoPollInterval = def.VideoPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{cfg: cfg, keys: keys, clients: make(map[string]*genai.Client)}
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) apiKey() string {
	if c.keys != nil {
		if k := strings.TrimSpace(c.keys.APIKey()); k != "" {
			return k
		}
	}
	return strings.TrimSpace(c.cfg.APIKey)
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, string, error) {
	key := c.apiKey()
	if key == "" {
		return nil, "", ErrNoCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, key, nil
	}
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.cfg.HTTPClient,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create gemini client: %w", err)
	}
	c.clients[key] = cl
	return cl, key, nil
}

// wrapErr tags an upstream failure with its reliability sentinel.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoCredential) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var sentinel error
	switch reliability.Classify(err) {
	case reliability.KindEntitlement:
		sentinel = reliability.ErrEntitlement
	case reliability.KindPermission:
		sentinel = reliability.ErrPermission
	case reliability.KindInvalidRequest:
		sentinel = reliability.ErrInvalidRequest
	case reliability.KindStreamFault:
		sentinel = reliability.ErrStreamFault
	default:
		sentinel = reliability.ErrTransient
	}
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, sentinel, err)
}

// Media is one generated asset.
type Media struct {
	MIMEType string
	Data     []byte
}

func firstInline(resp *genai.GenerateContentResponse) (Media, bool) {
	if resp == nil {
		return Media{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return Media{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}, true
			}
		}
	}
	return Media{}, false
}
