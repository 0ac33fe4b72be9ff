package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/capture"
	"github.com/sasa-studio/studio/internal/live"
	"github.com/sasa-studio/studio/internal/observability"
	"github.com/sasa-studio/studio/internal/playback"
	"github.com/sasa-studio/studio/internal/protocol"
	"github.com/sasa-studio/studio/internal/reliability"
	"github.com/sasa-studio/studio/internal/session"
)

// voiceSelector is implemented by connectors that can answer in a
// per-session voice.
type voiceSelector interface {
	WithVoice(voice string) live.Connector
}

func (s *Server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.connector == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live connector not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.UserID != userIDFrom(r) {
		respondError(w, http.StatusNotFound, "session_not_found", session.ErrNotFound.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusGone, "session_ended", session.ErrEnded.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	b := &liveBridge{
		ctx:       ctx,
		sessionID: sessionID,
		outbound:  outbound,
		sessions:  s.sessions,
		metrics:   s.metrics,
	}

	connector := s.connector
	if vs, ok := connector.(voiceSelector); ok {
		connector = vs.WithVoice(sess.Voice)
	}
	clock := playback.NewWallClock(nil)
	b.sink = &wsSink{clock: clock, sessionID: sessionID, emit: b.emit}
	mic := capture.NewQueueMicrophone(audio.CaptureSampleRate)
	ctrl := live.NewController(mic, connector, playback.NewScheduler(clock, b.sink), live.Config{
		StartTimeout:    s.cfg.LiveStartTimeout,
		TranscriptLimit: s.cfg.TranscriptDisplayLimit,
	}, b.hooks())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	var starts sync.WaitGroup
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			b.emitError("invalid_client_message", "gateway", err.Error())
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		if err := s.sessions.Touch(sessionID); err != nil {
			b.emitError("session_ended", "gateway", err.Error())
			break
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			if msg.SessionID != sessionID {
				b.emitError("session_mismatch", "gateway", "session_id does not match the connection")
				continue
			}
			switch msg.Action {
			case protocol.ActionStart:
				starts.Add(1)
				go func() {
					defer starts.Done()
					started := time.Now()
					if err := ctrl.Start(ctx); err != nil {
						if !errors.Is(err, live.ErrStopped) {
							b.fault(err)
						}
						return
					}
					s.metrics.ObserveStage(observability.StageLiveStart, time.Since(started))
				}()
			case protocol.ActionStop:
				_ = ctrl.Stop()
			}
		case protocol.ClientAudioChunk:
			if msg.SessionID != sessionID {
				b.emitError("session_mismatch", "gateway", "session_id does not match the connection")
				continue
			}
			if msg.SampleRate != audio.CaptureSampleRate {
				b.emitError("invalid_sample_rate", "gateway", fmt.Sprintf("sample_rate %d, want %d", msg.SampleRate, audio.CaptureSampleRate))
				continue
			}
			pcm, err := audio.DecodeBase64(msg.PCM16Base64)
			if err != nil {
				b.emitError("invalid_audio", "gateway", err.Error())
				continue
			}
			// Audio before start or after stop has nowhere to go.
			mic.Push(audio.PCM16ToFloat(pcm))
		}
	}

	cancel()
	_ = ctrl.Stop()
	starts.Wait()
	// A start that won the race against the first Stop is torn down here.
	_ = ctrl.Stop()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// liveBridge turns controller hooks into outbound socket messages. Hooks run
// under the controller lock, so fields touched only from hooks need no
// locking of their own.
type liveBridge struct {
	ctx       context.Context
	sessionID string
	outbound  chan<- any
	sessions  *session.Manager
	metrics   *observability.Metrics
	sink      *wsSink

	openedAt   time.Time
	heardAudio bool
}

func (b *liveBridge) hooks() live.Hooks {
	return live.Hooks{
		OnState: func(st live.State) {
			switch st {
			case live.StateOpening:
				b.openedAt = time.Now()
				b.heardAudio = false
			case live.StateIdle:
				b.sink.flushStops()
			}
			_ = b.sessions.SetLiveState(b.sessionID, st.String())
			b.emit(protocol.SessionState{
				Type:      protocol.TypeSessionState,
				SessionID: b.sessionID,
				State:     st.String(),
			})
		},
		OnTranscript: func(e live.TranscriptEntry) {
			b.emit(protocol.Transcript{
				Type:      protocol.TypeTranscript,
				SessionID: b.sessionID,
				Seq:       e.Seq,
				Role:      string(e.Role),
				Text:      e.Text,
			})
		},
		OnAudio: func(playback.Scheduled) {
			_ = b.sessions.RecordAudio(b.sessionID)
			b.metrics.BuffersScheduled.Inc()
			if !b.heardAudio && !b.openedAt.IsZero() {
				b.heardAudio = true
				b.metrics.ObserveFirstAudioLatency(time.Since(b.openedAt))
			}
		},
		OnInterrupt: func(int) {
			_ = b.sessions.Interrupt(b.sessionID)
			b.metrics.Interruptions.Inc()
			b.sink.flushStops()
		},
		OnFault: b.fault,
	}
}

func (b *liveBridge) fault(err error) {
	kind := reliability.Classify(err)
	b.metrics.ObserveIndicator("live_" + string(kind))
	b.emitError(string(kind), "live", reliability.RedactedError(err))
}

func (b *liveBridge) emitError(code, source, detail string) {
	b.emit(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: b.sessionID,
		Code:      code,
		Source:    source,
		Detail:    detail,
	})
}

// emit queues msg for the writer. It blocks so audio is never dropped, and
// gives up once the socket is gone.
func (b *liveBridge) emit(msg any) {
	t, _ := messageTypeOf(msg)
	select {
	case b.outbound <- msg:
		b.metrics.ObserveOutboundMessage(string(t), "queued")
	case <-b.ctx.Done():
		b.metrics.ObserveOutboundMessage(string(t), "drop_closed")
	}
}

// wsSink plays buffers on the browser: it ships each buffer with its start
// position on the connection clock and tracks when it will have finished.
type wsSink struct {
	clock     playback.Clock
	sessionID string
	emit      func(any)

	mu      sync.Mutex
	stopped []uint64
}

type wsVoice struct {
	id    uint64
	timer *time.Timer
	sink  *wsSink
}

func (k *wsSink) Play(id uint64, buf audio.Buffer, at time.Duration, done func()) (playback.Voice, error) {
	d := buf.Duration()
	k.emit(protocol.AssistantAudio{
		Type:        protocol.TypeAssistantAudio,
		SessionID:   k.sessionID,
		BufferID:    id,
		StartMS:     at.Milliseconds(),
		DurationMS:  d.Milliseconds(),
		SampleRate:  buf.SampleRate,
		PCM16Base64: audio.EncodeBase64(buf.PCM16()),
	})
	wait := at + d - k.clock.Now()
	if wait < 0 {
		wait = 0
	}
	return &wsVoice{id: id, timer: time.AfterFunc(wait, done), sink: k}, nil
}

// Stop only reports buffers that had not finished yet.
func (v *wsVoice) Stop() {
	if !v.timer.Stop() {
		return
	}
	v.sink.mu.Lock()
	v.sink.stopped = append(v.sink.stopped, v.id)
	v.sink.mu.Unlock()
}

func (k *wsSink) flushStops() {
	k.mu.Lock()
	ids := k.stopped
	k.stopped = nil
	k.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	k.emit(protocol.PlaybackStop{
		Type:      protocol.TypePlaybackStop,
		SessionID: k.sessionID,
		BufferIDs: ids,
	})
}

func messageTypeOf(msg any) (protocol.MessageType, bool) {
	switch m := msg.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionState:
		return m.Type, true
	case protocol.Transcript:
		return m.Type, true
	case protocol.AssistantAudio:
		return m.Type, true
	case protocol.PlaybackStop:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
