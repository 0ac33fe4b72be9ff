// Package studio implements the request/response panels: chat, image, video
// and voice synthesis, with their validated options, histories and the
// credential gate.
package studio

import (
	"fmt"
	"strings"

	"github.com/sasa-studio/studio/internal/reliability"
)

// ErrInvalidOption marks a rejected panel option.
var ErrInvalidOption = fmt.Errorf("invalid option: %w", reliability.ErrInvalidRequest)

type Tier string

const (
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
)

var (
	ImageAspectRatios = []string{"1:1", "4:3", "16:9", "9:16"}
	VideoResolutions  = []string{"720p", "1080p"}
	VideoAspectRatios = []string{"16:9", "9:16"}
	Voices            = []string{"Kore", "Puck", "Charon", "Fenrir", "Zephyr"}
)

// VoiceInfo is a prebuilt voice as listed to clients.
type VoiceInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

var VoiceCatalog = []VoiceInfo{
	{Name: "Kore", DisplayName: "Kore (Friendly)"},
	{Name: "Puck", DisplayName: "Puck (Cheerful)"},
	{Name: "Charon", DisplayName: "Charon (Deep)"},
	{Name: "Fenrir", DisplayName: "Fenrir (Strong)"},
	{Name: "Zephyr", DisplayName: "Zephyr (Soft)"},
}

const (
	DefaultVoice            = "Kore"
	DefaultImageAspectRatio = "1:1"
	DefaultVideoResolution  = "1080p"
	DefaultVideoAspectRatio = "16:9"
)

type ChatOptions struct {
	Prompt string
	Search bool
}

func NewChatOptions(prompt string, search bool) (ChatOptions, error) {
	p, err := requirePrompt(prompt)
	if err != nil {
		return ChatOptions{}, err
	}
	return ChatOptions{Prompt: p, Search: search}, nil
}

type ImageOptions struct {
	Prompt      string
	Tier        Tier
	AspectRatio string
}

// NewImageOptions validates an image request. Empty tier and aspect ratio
// take the defaults.
func NewImageOptions(prompt string, tier Tier, aspectRatio string) (ImageOptions, error) {
	p, err := requirePrompt(prompt)
	if err != nil {
		return ImageOptions{}, err
	}
	switch tier {
	case "":
		tier = TierStandard
	case TierStandard, TierPro:
	default:
		return ImageOptions{}, fmt.Errorf("%w: tier %q", ErrInvalidOption, tier)
	}
	if aspectRatio == "" {
		aspectRatio = DefaultImageAspectRatio
	}
	if !contains(ImageAspectRatios, aspectRatio) {
		return ImageOptions{}, fmt.Errorf("%w: aspect ratio %q", ErrInvalidOption, aspectRatio)
	}
	return ImageOptions{Prompt: p, Tier: tier, AspectRatio: aspectRatio}, nil
}

type VideoOptions struct {
	Prompt      string
	Resolution  string
	AspectRatio string
}

func NewVideoOptions(prompt, resolution, aspectRatio string) (VideoOptions, error) {
	p, err := requirePrompt(prompt)
	if err != nil {
		return VideoOptions{}, err
	}
	if resolution == "" {
		resolution = DefaultVideoResolution
	}
	if aspectRatio == "" {
		aspectRatio = DefaultVideoAspectRatio
	}
	if !contains(VideoResolutions, resolution) {
		return VideoOptions{}, fmt.Errorf("%w: resolution %q", ErrInvalidOption, resolution)
	}
	if !contains(VideoAspectRatios, aspectRatio) {
		return VideoOptions{}, fmt.Errorf("%w: aspect ratio %q", ErrInvalidOption, aspectRatio)
	}
	return VideoOptions{Prompt: p, Resolution: resolution, AspectRatio: aspectRatio}, nil
}

type SpeechOptions struct {
	Text  string
	Voice string
}

func NewSpeechOptions(text, voice string) (SpeechOptions, error) {
	t, err := requirePrompt(text)
	if err != nil {
		return SpeechOptions{}, err
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if !contains(Voices, voice) {
		return SpeechOptions{}, fmt.Errorf("%w: voice %q", ErrInvalidOption, voice)
	}
	return SpeechOptions{Text: t, Voice: voice}, nil
}

// LiveOptions configures a live voice session.
type LiveOptions struct {
	Voice string
}

func NewLiveOptions(voice string) (LiveOptions, error) {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		voice = DefaultVoice
	}
	if !contains(Voices, voice) {
		return LiveOptions{}, fmt.Errorf("%w: voice %q", ErrInvalidOption, voice)
	}
	return LiveOptions{Voice: voice}, nil
}

func requirePrompt(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidOption)
	}
	return s, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
