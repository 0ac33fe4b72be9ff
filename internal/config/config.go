package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sasa-studio/studio/internal/gemini"
)

// Config contains all runtime settings for the studio service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// GeminiAPIKey is the key used until a user selects their own.
	GeminiAPIKey string
	PresetsFile  string
	Presets      Presets

	LiveStartTimeout       time.Duration
	VideoPollInterval      time.Duration
	TranscriptDisplayLimit int
	HistoryLimit           int
}

// Load reads environment variables and applies safe defaults. Model presets
// come from the defaults, then STUDIO_PRESETS_FILE, then GEMINI_* variables.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "sasa_studio"),
		AllowAnyOrigin:           false,
		GeminiAPIKey:             firstNonEmpty(stringsTrimSpace("GEMINI_API_KEY"), stringsTrimSpace("API_KEY")),
		PresetsFile:              stringsTrimSpace("STUDIO_PRESETS_FILE"),
		Presets:                  DefaultPresets(),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		LiveStartTimeout:         15 * time.Second,
		VideoPollInterval:        10 * time.Second,
		TranscriptDisplayLimit:   5,
		HistoryLimit:             200,
	}

	if cfg.PresetsFile != "" {
		p, err := LoadPresets(cfg.PresetsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Presets = cfg.Presets.Merge(p)
	}
	cfg.Presets = cfg.Presets.Merge(presetsFromEnv())
	if err := cfg.Presets.Validate(); err != nil {
		return Config{}, fmt.Errorf("presets: %w", err)
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LiveStartTimeout, err = durationFromEnv("LIVE_START_TIMEOUT", cfg.LiveStartTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VideoPollInterval, err = durationFromEnv("VIDEO_POLL_INTERVAL", cfg.VideoPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscriptDisplayLimit, err = intFromEnv("TRANSCRIPT_DISPLAY_LIMIT", cfg.TranscriptDisplayLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("STUDIO_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.LiveStartTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVE_START_TIMEOUT must be positive")
	}
	if cfg.VideoPollInterval < time.Second {
		return Config{}, fmt.Errorf("VIDEO_POLL_INTERVAL must be at least 1s")
	}
	if cfg.TranscriptDisplayLimit <= 0 {
		return Config{}, fmt.Errorf("TRANSCRIPT_DISPLAY_LIMIT must be positive")
	}
	if cfg.HistoryLimit < 0 {
		return Config{}, fmt.Errorf("STUDIO_HISTORY_LIMIT must be >= 0")
	}

	return cfg, nil
}

// Gemini returns the provider settings derived from cfg.
func (c Config) Gemini() gemini.Config {
	return gemini.Config{
		APIKey:            c.GeminiAPIKey,
		ChatModel:         c.Presets.Chat.Model,
		ChatInstruction:   c.Presets.Chat.Instruction,
		ImageModel:        c.Presets.Image.Model,
		ProImageModel:     c.Presets.Image.ProModel,
		VideoModel:        c.Presets.Video.Model,
		SpeechModel:       c.Presets.Speech.Model,
		LiveModel:         c.Presets.Live.Model,
		LiveInstruction:   c.Presets.Live.Instruction,
		LiveVoice:         c.Presets.Live.Voice,
		VideoPollInterval: c.VideoPollInterval,
	}
}

func presetsFromEnv() Presets {
	var p Presets
	p.Chat.Model = stringsTrimSpace("GEMINI_CHAT_MODEL")
	p.Chat.Instruction = stringsTrimSpace("GEMINI_CHAT_INSTRUCTION")
	p.Image.Model = stringsTrimSpace("GEMINI_IMAGE_MODEL")
	p.Image.ProModel = stringsTrimSpace("GEMINI_PRO_IMAGE_MODEL")
	p.Video.Model = stringsTrimSpace("GEMINI_VIDEO_MODEL")
	p.Speech.Model = stringsTrimSpace("GEMINI_SPEECH_MODEL")
	p.Live.Model = stringsTrimSpace("GEMINI_LIVE_MODEL")
	p.Live.Instruction = stringsTrimSpace("GEMINI_LIVE_INSTRUCTION")
	p.Live.Voice = stringsTrimSpace("GEMINI_LIVE_VOICE")
	return p
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
