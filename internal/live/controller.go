package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/capture"
	"github.com/sasa-studio/studio/internal/playback"
)

// Config tunes a Controller.
type Config struct {
	StartTimeout    time.Duration
	FrameSamples    int
	TranscriptLimit int
}

// Hooks observe controller activity. They run synchronously while the
// controller lock is held and must not call back into the Controller.
type Hooks struct {
	OnState      func(State)
	OnTranscript func(TranscriptEntry)
	OnAudio      func(playback.Scheduled)
	OnInterrupt  func(stopped int)
	OnFault      func(error)
}

// Controller owns the lifecycle of one streaming voice connection at a time.
type Controller struct {
	mic        capture.Microphone
	connector  Connector
	scheduler  *playback.Scheduler
	transcript *Transcript
	cfg        Config
	hooks      Hooks

	mu          sync.Mutex
	state       State
	gen         uint64
	cancelStart context.CancelFunc
	cancelRecv  context.CancelFunc
	pipeline    *capture.Pipeline
	conn        Conn
}

func NewController(mic capture.Microphone, connector Connector, scheduler *playback.Scheduler, cfg Config, hooks Hooks) *Controller {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 15 * time.Second
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = capture.FrameSamples
	}
	return &Controller{
		mic:        mic,
		connector:  connector,
		scheduler:  scheduler,
		transcript: NewTranscript(cfg.TranscriptLimit),
		cfg:        cfg,
		hooks:      hooks,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Transcript() *Transcript { return c.transcript }

// Start opens the microphone, then the remote connection, and attaches
// capture once the connection is open. It is only valid from StateIdle.
// A ctx cancelled before the connection is adopted leaves the controller idle.
func (c *Controller) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.gen++
	gen := c.gen
	startCtx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	c.cancelStart = cancel
	c.setStateLocked(StateOpening)
	c.mu.Unlock()
	defer cancel()

	stream, err := c.mic.Open(startCtx, audio.CaptureSampleRate)
	if err != nil {
		if !c.abort(gen) {
			return ErrStopped
		}
		return fmt.Errorf("open microphone: %w", err)
	}
	pipeline := capture.NewPipeline(stream, c.cfg.FrameSamples)
	if !c.adopt(gen, func() { c.pipeline = pipeline }) {
		pipeline.Detach()
		return ErrStopped
	}

	conn, err := c.connector.Connect(startCtx)
	if err != nil {
		if !c.abort(gen) {
			return ErrStopped
		}
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrStartTimeout, err)
		}
		return fmt.Errorf("connect live endpoint: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		if !c.abort(gen) {
			return ErrStopped
		}
		return err
	}
	if !c.adopt(gen, func() { c.conn = conn }) {
		_ = conn.Close()
		return ErrStopped
	}

	c.dispatch(gen, Event{Kind: EventOpened})
	if c.stale(gen) {
		return ErrStopped
	}
	return nil
}

// Stop tears the session down from Opening or Active. It is a no-op when idle.
// Capture is detached before Stop returns.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return nil
	}
	c.gen++
	if c.cancelStart != nil {
		c.cancelStart()
		c.cancelStart = nil
	}
	c.teardownLocked()
	return nil
}

// Dispatch applies an inbound event to the current session.
func (c *Controller) Dispatch(ev Event) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.dispatch(gen, ev)
}

// dispatch reports false when the event belonged to a session that is gone.
func (c *Controller) dispatch(gen uint64, ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}

	switch ev.Kind {
	case EventOpened:
		if c.state != StateOpening || c.conn == nil || c.pipeline == nil {
			return false
		}
		c.openLocked(gen)
	case EventMessage:
		if c.state != StateActive {
			return false
		}
		c.handleMessageLocked(ev.Message)
	case EventClosed, EventErrored:
		if c.state != StateOpening && c.state != StateActive {
			return false
		}
		if ev.Kind == EventErrored && c.hooks.OnFault != nil {
			c.hooks.OnFault(ev.Err)
		}
		c.gen++
		c.teardownLocked()
		return false
	}
	return true
}

func (c *Controller) openLocked(gen uint64) {
	conn := c.conn
	pipeline := c.pipeline
	err := pipeline.Attach(func(ctx context.Context, f capture.Frame) error {
		return conn.Send(ctx, f)
	})
	if err != nil {
		log.Printf("live: attach capture failed: %v", err)
		c.gen++
		c.teardownLocked()
		return
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	c.cancelRecv = cancel
	c.setStateLocked(StateActive)

	go c.receive(recvCtx, gen, conn)
	go func() {
		<-pipeline.Done()
		if err := pipeline.Err(); err != nil {
			c.dispatch(gen, Event{Kind: EventErrored, Err: fmt.Errorf("send capture frame: %w", err)})
		}
	}()
}

func (c *Controller) handleMessageLocked(m Message) {
	if m.AssistantText != "" {
		e := c.transcript.Append(RoleAssistant, m.AssistantText)
		if c.hooks.OnTranscript != nil {
			c.hooks.OnTranscript(e)
		}
	}
	if m.CallerText != "" {
		e := c.transcript.Append(RoleCaller, m.CallerText)
		if c.hooks.OnTranscript != nil {
			c.hooks.OnTranscript(e)
		}
	}
	for _, payload := range m.Audio {
		buf, err := audio.DecodeBuffer(payload, audio.PlaybackSampleRate, 1)
		if err != nil {
			log.Printf("live: drop audio payload: %v", err)
			continue
		}
		sched, err := c.scheduler.Enqueue(buf)
		if err != nil {
			log.Printf("live: enqueue audio failed: %v", err)
			continue
		}
		if c.hooks.OnAudio != nil {
			c.hooks.OnAudio(sched)
		}
	}
	if m.Interrupted {
		n := c.scheduler.Interrupt()
		if c.hooks.OnInterrupt != nil {
			c.hooks.OnInterrupt(n)
		}
	}
}

func (c *Controller) receive(ctx context.Context, gen uint64, conn Conn) {
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
				c.dispatch(gen, Event{Kind: EventClosed})
			} else {
				c.dispatch(gen, Event{Kind: EventErrored, Err: err})
			}
			return
		}
		if !c.dispatch(gen, Event{Kind: EventMessage, Message: msg}) {
			return
		}
	}
}

// teardownLocked releases capture, the connection and scheduled playback,
// ending in StateIdle. Callers bump gen first so late events are dropped.
func (c *Controller) teardownLocked() {
	c.setStateLocked(StateClosing)
	if c.cancelRecv != nil {
		c.cancelRecv()
		c.cancelRecv = nil
	}
	if c.pipeline != nil {
		c.pipeline.Detach()
		c.pipeline = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Printf("live: close connection: %v", err)
		}
		c.conn = nil
	}
	c.scheduler.Interrupt()
	c.setStateLocked(StateIdle)
}

// abort tears down a failed start. It reports false if Stop got there first.
func (c *Controller) abort(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.gen++
	c.teardownLocked()
	return true
}

func (c *Controller) adopt(gen uint64, set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	set()
	return true
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}
