package gemini

import (
	"context"

	"google.golang.org/genai"
)

const speechPromptPrefix = "Say this with the appropriate emotion: "

// Synthesize speaks text in the named prebuilt voice and returns raw PCM16LE
// mono audio at 24 kHz.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	cl, _, err := c.sdk(ctx)
	if err != nil {
		return nil, wrapErr("synthesize speech", err)
	}
	resp, err := cl.Models.GenerateContent(ctx, c.cfg.SpeechModel, genai.Text(speechPromptPrefix+text), speechConfig(voice))
	if err != nil {
		return nil, wrapErr("synthesize speech", err)
	}
	m, ok := firstInline(resp)
	if !ok {
		return nil, wrapErr("synthesize speech", ErrNoMedia)
	}
	return m.Data, nil
}

func speechConfig(voice string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
}
