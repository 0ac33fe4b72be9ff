package gemini

import (
	"context"

	"google.golang.org/genai"
)

// ProImageSize is the output size requested from the pro image model.
const ProImageSize = "1K"

// GenerateImage renders prompt at the given aspect ratio. pro selects the
// higher quality model.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string, pro bool) (Media, error) {
	cl, _, err := c.sdk(ctx)
	if err != nil {
		return Media{}, wrapErr("generate image", err)
	}
	model := c.cfg.ImageModel
	imgCfg := &genai.ImageConfig{AspectRatio: aspectRatio}
	if pro {
		model = c.cfg.ProImageModel
		imgCfg.ImageSize = ProImageSize
	}
	resp, err := cl.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ImageConfig: imgCfg,
	})
	if err != nil {
		return Media{}, wrapErr("generate image", err)
	}
	m, ok := firstInline(resp)
	if !ok {
		return Media{}, wrapErr("generate image", ErrNoMedia)
	}
	if m.MIMEType == "" {
		m.MIMEType = "image/png"
	}
	return m, nil
}
