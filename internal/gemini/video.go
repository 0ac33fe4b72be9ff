package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/genai"

	"github.com/sasa-studio/studio/internal/reliability"
)

// maxVideoBytes bounds a downloaded clip.
const maxVideoBytes = 512 << 20

// videoOps is the slice of the SDK the video flow needs.
type videoOps interface {
	start(ctx context.Context, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

type sdkVideoOps struct{ cl *genai.Client }

func (o sdkVideoOps) start(ctx context.Context, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return o.cl.Models.GenerateVideos(ctx, model, prompt, nil, cfg)
}

func (o sdkVideoOps) poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return o.cl.Operations.GetVideosOperation(ctx, op, nil)
}

// GenerateVideo submits a single clip, polls until the operation is done and
// downloads the result.
func (c *Client) GenerateVideo(ctx context.Context, prompt, resolution, aspectRatio string) (Media, error) {
	cl, key, err := c.sdk(ctx)
	if err != nil {
		return Media{}, wrapErr("generate video", err)
	}
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     resolution,
		AspectRatio:    aspectRatio,
	}
	video, err := runVideo(ctx, sdkVideoOps{cl: cl}, c.cfg.VideoModel, prompt, cfg, c.cfg.VideoPollInterval)
	if err != nil {
		return Media{}, wrapErr("generate video", err)
	}
	if len(video.VideoBytes) > 0 {
		return Media{MIMEType: mimeOr(video.MIMEType, "video/mp4"), Data: video.VideoBytes}, nil
	}
	data, err := download(ctx, c.cfg.HTTPClient, video.URI, key)
	if err != nil {
		return Media{}, wrapErr("download video", err)
	}
	return Media{MIMEType: mimeOr(video.MIMEType, "video/mp4"), Data: data}, nil
}

func runVideo(ctx context.Context, ops videoOps, model, prompt string, cfg *genai.GenerateVideosConfig, interval time.Duration) (*genai.Video, error) {
	op, err := ops.start(ctx, model, prompt, cfg)
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for op != nil && !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if op, err = ops.poll(ctx, op); err != nil {
			return nil, err
		}
	}
	if op == nil {
		return nil, ErrNoMedia
	}
	if len(op.Error) > 0 {
		return nil, fmt.Errorf("video operation failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return nil, ErrNoMedia
	}
	gv := op.Response.GeneratedVideos[0]
	if gv == nil || gv.Video == nil || (gv.Video.URI == "" && len(gv.Video.VideoBytes) == 0) {
		return nil, ErrNoMedia
	}
	return gv.Video, nil
}

// download fetches a generated file URI, authenticating with the API key.
func download(ctx context.Context, client *http.Client, rawURI, key string) ([]byte, error) {
	if rawURI == "" {
		return nil, ErrNoMedia
	}
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("parse video uri: %w", err)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var sentinel error
		switch reliability.KindFromHTTPStatus(resp.StatusCode) {
		case reliability.KindPermission:
			sentinel = reliability.ErrPermission
		case reliability.KindEntitlement:
			sentinel = reliability.ErrEntitlement
		case reliability.KindTransient:
			sentinel = reliability.ErrTransient
		default:
			sentinel = reliability.ErrInvalidRequest
		}
		return nil, fmt.Errorf("%w: download status %d: %s", sentinel, resp.StatusCode, string(body))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxVideoBytes {
		return nil, errors.New("video exceeds download limit")
	}
	return data, nil
}

func mimeOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
