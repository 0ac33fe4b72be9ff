package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sasa-studio/studio/internal/gemini"
)

// Presets names the model and instruction used by each panel.
type Presets struct {
	Chat   ChatPreset  `yaml:"chat"`
	Image  ImagePreset `yaml:"image"`
	Video  ModelPreset `yaml:"video"`
	Speech ModelPreset `yaml:"speech"`
	Live   LivePreset  `yaml:"live"`
}

type ChatPreset struct {
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"`
}

type ImagePreset struct {
	Model    string `yaml:"model"`
	ProModel string `yaml:"pro_model"`
}

type ModelPreset struct {
	Model string `yaml:"model"`
}

type LivePreset struct {
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"`
	Voice       string `yaml:"voice"`
}

func DefaultPresets() Presets {
	return Presets{
		Chat:   ChatPreset{Model: gemini.DefaultChatModel, Instruction: gemini.DefaultChatInstruction},
		Image:  ImagePreset{Model: gemini.DefaultImageModel, ProModel: gemini.DefaultProImageModel},
		Video:  ModelPreset{Model: gemini.DefaultVideoModel},
		Speech: ModelPreset{Model: gemini.DefaultSpeechModel},
		Live:   LivePreset{Model: gemini.DefaultLiveModel, Instruction: gemini.DefaultLiveInstruction},
	}
}

// LoadPresets reads a YAML presets file. Omitted fields stay empty.
func LoadPresets(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Presets{}, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Presets{}, fmt.Errorf("failed to parse presets file %s: %w", path, err)
	}
	return p, nil
}

// Merge returns p with every non-empty field of o applied on top.
func (p Presets) Merge(o Presets) Presets {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&p.Chat.Model, o.Chat.Model)
	set(&p.Chat.Instruction, o.Chat.Instruction)
	set(&p.Image.Model, o.Image.Model)
	set(&p.Image.ProModel, o.Image.ProModel)
	set(&p.Video.Model, o.Video.Model)
	set(&p.Speech.Model, o.Speech.Model)
	set(&p.Live.Model, o.Live.Model)
	set(&p.Live.Instruction, o.Live.Instruction)
	set(&p.Live.Voice, o.Live.Voice)
	return p
}

func (p Presets) Validate() error {
	required := map[string]string{
		"chat.model":      p.Chat.Model,
		"image.model":     p.Image.Model,
		"image.pro_model": p.Image.ProModel,
		"video.model":     p.Video.Model,
		"speech.model":    p.Speech.Model,
		"live.model":      p.Live.Model,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	return nil
}
