package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// FallbackReply is shown when the model answers with no text.
const FallbackReply = "I'm sorry, I couldn't process that request."

// Source is a web page that grounded a chat reply.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type ChatReply struct {
	Text    string
	Sources []Source
}

// Chat sends one prompt. With search set, Google Search grounding is enabled
// and the cited pages are returned as sources.
func (c *Client) Chat(ctx context.Context, prompt string, search bool) (ChatReply, error) {
	cl, _, err := c.sdk(ctx)
	if err != nil {
		return ChatReply{}, wrapErr("chat", err)
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.cfg.ChatInstruction, genai.RoleUser),
	}
	if search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	resp, err := cl.Models.GenerateContent(ctx, c.cfg.ChatModel, genai.Text(prompt), cfg)
	if err != nil {
		return ChatReply{}, wrapErr("chat", err)
	}
	return chatReply(resp), nil
}

func chatReply(resp *genai.GenerateContentResponse) ChatReply {
	var reply ChatReply
	if resp != nil {
		reply.Text = resp.Text()
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
				for _, chunk := range gm.GroundingChunks {
					if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
						continue
					}
					reply.Sources = append(reply.Sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
				}
			}
		}
	}
	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = FallbackReply
	}
	return reply
}
