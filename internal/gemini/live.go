package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/sasa-studio/studio/internal/capture"
	"github.com/sasa-studio/studio/internal/live"
	"github.com/sasa-studio/studio/internal/reliability"
)

// liveSession is the part of *genai.Session a live connection uses.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// LiveConnector opens native-audio live sessions. It implements live.Connector.
type LiveConnector struct {
	c     *Client
	voice string
}

func (c *Client) Live() *LiveConnector {
	return &LiveConnector{c: c, voice: c.cfg.LiveVoice}
}

// WithVoice returns a connector that answers with the named prebuilt voice.
func (l *LiveConnector) WithVoice(voice string) live.Connector {
	if voice == "" {
		return l
	}
	return &LiveConnector{c: l.c, voice: voice}
}

func (l *LiveConnector) Connect(ctx context.Context) (live.Conn, error) {
	cl, _, err := l.c.sdk(ctx)
	if err != nil {
		return nil, wrapErr("live connect", err)
	}
	sess, err := cl.Live.Connect(ctx, l.c.cfg.LiveModel, l.connectConfig())
	if err != nil {
		return nil, wrapErr("live connect", err)
	}
	return newLiveConn(sess), nil
}

func (l *LiveConnector) connectConfig() *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		SystemInstruction:        genai.NewContentFromText(l.c.cfg.LiveInstruction, genai.RoleUser),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if l.voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: l.voice},
			},
		}
	}
	return cfg
}

type liveConn struct {
	sess liveSession

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newLiveConn(sess liveSession) *liveConn {
	return &liveConn{sess: sess}
}

func (c *liveConn) Send(ctx context.Context, f capture.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	err := c.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: f.MIMEType, Data: f.PCM},
	})
	if err != nil {
		return receiveErr(err)
	}
	return nil
}

// Receive skips server messages that carry nothing the controller uses,
// such as setup acknowledgements.
func (c *liveConn) Receive(ctx context.Context) (live.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return live.Message{}, err
		}
		msg, err := c.sess.Receive()
		if err != nil {
			return live.Message{}, receiveErr(err)
		}
		if m, ok := toMessage(msg); ok {
			return m, nil
		}
	}
}

func (c *liveConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sess.Close()
	})
	return c.closeErr
}

func toMessage(msg *genai.LiveServerMessage) (live.Message, bool) {
	if msg == nil || msg.ServerContent == nil {
		return live.Message{}, false
	}
	sc := msg.ServerContent
	var m live.Message
	if sc.OutputTranscription != nil {
		m.AssistantText = sc.OutputTranscription.Text
	}
	if sc.InputTranscription != nil {
		m.CallerText = sc.InputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				m.Audio = append(m.Audio, part.InlineData.Data)
			}
		}
	}
	m.Interrupted = sc.Interrupted
	m.TurnComplete = sc.TurnComplete
	return m, true
}

// receiveErr maps a transport error to live.ErrClosed for clean closes and
// to a reliability sentinel otherwise.
func receiveErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", live.ErrClosed, err)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return fmt.Errorf("%w: %v", live.ErrClosed, err)
		}
		if reliability.ClassifyMessage(ce.Text) == reliability.KindEntitlement {
			return fmt.Errorf("%w: %v", reliability.ErrEntitlement, err)
		}
		return fmt.Errorf("%w: live socket closed with %d: %s", reliability.ErrStreamFault, ce.Code, ce.Text)
	}
	return fmt.Errorf("%w: %v", reliability.ErrStreamFault, err)
}
