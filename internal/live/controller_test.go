package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/capture"
	"github.com/sasa-studio/studio/internal/playback"
)

type fakeMic struct {
	stream *capture.QueueStream
	err    error
}

func (m *fakeMic) Open(context.Context, int) (capture.Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

type fakeConn struct {
	in   chan Message
	sent chan capture.Frame
	done chan struct{}
	once sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan Message, 8),
		sent: make(chan capture.Frame, 64),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, f capture.Frame) error {
	select {
	case c.sent <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return Message{}, ErrClosed
		}
		return m, nil
	case <-c.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type fakeConnector struct {
	conn      *fakeConn
	err       error
	block     bool
	entered   chan struct{}
	onConnect func()
}

func (c *fakeConnector) Connect(ctx context.Context) (Conn, error) {
	if c.entered != nil {
		close(c.entered)
	}
	if c.onConnect != nil {
		c.onConnect()
	}
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.conn, nil
}

type nopVoice struct{ stopped *bool }

func (v nopVoice) Stop() { *v.stopped = true }

type recordingSink struct {
	mu      sync.Mutex
	starts  []time.Duration
	stopped []*bool
}

func (s *recordingSink) Play(_ uint64, _ audio.Buffer, at time.Duration, _ func()) (playback.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped := new(bool)
	s.starts = append(s.starts, at)
	s.stopped = append(s.stopped, stopped)
	return nopVoice{stopped: stopped}, nil
}

func pcmOf(d time.Duration) []byte {
	frames := int(int64(d) * audio.PlaybackSampleRate / int64(time.Second))
	return make([]byte, frames*2)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	mic       *fakeMic
	conn      *fakeConn
	connector *fakeConnector
	clock     *playback.ManualClock
	sink      *recordingSink
	sched     *playback.Scheduler
	audio     chan playback.Scheduled
	interrupt chan int
	faults    chan error
	ctrl      *Controller
}

func newHarness(cfg Config) *harness {
	h := &harness{
		mic:       &fakeMic{stream: capture.NewQueueStream(nil)},
		conn:      newFakeConn(),
		clock:     &playback.ManualClock{},
		sink:      &recordingSink{},
		audio:     make(chan playback.Scheduled, 16),
		interrupt: make(chan int, 4),
		faults:    make(chan error, 4),
	}
	h.connector = &fakeConnector{conn: h.conn}
	h.sched = playback.NewScheduler(h.clock, h.sink)
	h.ctrl = NewController(h.mic, h.connector, h.sched, cfg, Hooks{
		OnAudio:     func(s playback.Scheduled) { h.audio <- s },
		OnInterrupt: func(n int) { h.interrupt <- n },
		OnFault:     func(err error) { h.faults <- err },
	})
	return h
}

func TestControllerStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(Config{})
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
}

func TestControllerStartStreamsCaptureFrames(t *testing.T) {
	h := newHarness(Config{FrameSamples: 4})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.ctrl.State(); got != StateActive {
		t.Fatalf("State() = %s, want active", got)
	}

	h.mic.stream.Push([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8})
	for want := 1; want <= 2; want++ {
		select {
		case f := <-h.conn.sent:
			if f.Seq != want {
				t.Fatalf("frame Seq = %d, want %d", f.Seq, want)
			}
			if f.MIMEType != audio.CaptureMIMEType {
				t.Fatalf("frame MIMEType = %q", f.MIMEType)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not sent", want)
		}
	}

	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyActive", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !h.mic.stream.Closed() {
		t.Fatalf("microphone stream still open after Stop")
	}
	if !h.conn.isClosed() {
		t.Fatalf("connection still open after Stop")
	}
}

func TestControllerPermissionDeniedStaysIdle(t *testing.T) {
	h := newHarness(Config{})
	h.mic.err = fmt.Errorf("device: %w", capture.ErrPermissionDenied)

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Start() error = %v, want ErrPermissionDenied", err)
	}
	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
}

func TestControllerStopDuringOpeningReleasesMicrophone(t *testing.T) {
	h := newHarness(Config{})
	h.connector.block = true
	h.connector.entered = make(chan struct{})

	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.Start(context.Background()) }()

	<-h.connector.entered
	if got := h.ctrl.State(); got != StateOpening {
		t.Fatalf("State() = %s, want opening", got)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("Start() error = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return after Stop")
	}
	if !h.mic.stream.Closed() {
		t.Fatalf("microphone stream still open")
	}
	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
}

func TestControllerStartTimeout(t *testing.T) {
	h := newHarness(Config{StartTimeout: 20 * time.Millisecond})
	h.connector.block = true

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("Start() error = %v, want ErrStartTimeout", err)
	}
	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
	if !h.mic.stream.Closed() {
		t.Fatalf("microphone stream still open after timeout")
	}
}

func TestControllerRoutesMessages(t *testing.T) {
	h := newHarness(Config{})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.ctrl.Stop()

	h.conn.in <- Message{
		AssistantText: "hello there",
		CallerText:    "hi",
		Audio:         [][]byte{pcmOf(time.Second)},
	}
	select {
	case s := <-h.audio:
		if s.Start != 0 || s.End != time.Second {
			t.Fatalf("scheduled = %+v, want [0s,1s)", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audio not scheduled")
	}

	entries := h.ctrl.Transcript().All()
	if len(entries) != 2 {
		t.Fatalf("transcript entries = %d, want 2", len(entries))
	}
	if entries[0].Role != RoleAssistant || entries[0].Text != "hello there" {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].Role != RoleCaller || entries[1].Text != "hi" {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
}

func TestControllerInterruptRestartsAtNow(t *testing.T) {
	h := newHarness(Config{})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.ctrl.Stop()

	h.conn.in <- Message{Audio: [][]byte{pcmOf(time.Second)}}
	<-h.audio

	h.clock.Set(300 * time.Millisecond)
	h.conn.in <- Message{Interrupted: true}
	select {
	case n := <-h.interrupt:
		if n != 1 {
			t.Fatalf("interrupted buffers = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("interrupt not handled")
	}

	h.conn.in <- Message{Audio: [][]byte{pcmOf(500 * time.Millisecond)}}
	select {
	case s := <-h.audio:
		if s.Start != 300*time.Millisecond {
			t.Fatalf("second buffer Start = %v, want 300ms", s.Start)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second buffer not scheduled")
	}

	h.sink.mu.Lock()
	first := *h.sink.stopped[0]
	h.sink.mu.Unlock()
	if !first {
		t.Fatalf("first buffer should have been stopped")
	}
}

func TestControllerRemoteCloseReturnsToIdle(t *testing.T) {
	h := newHarness(Config{})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	close(h.conn.in)

	waitFor(t, "idle after remote close", func() bool { return h.ctrl.State() == StateIdle })
	if !h.mic.stream.Closed() {
		t.Fatalf("microphone stream still open after remote close")
	}
	select {
	case err := <-h.faults:
		t.Fatalf("clean close reported fault %v", err)
	default:
	}
}

func TestControllerDropsMessagesAfterStop(t *testing.T) {
	h := newHarness(Config{})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	h.ctrl.Dispatch(Event{Kind: EventMessage, Message: Message{AssistantText: "late", Audio: [][]byte{pcmOf(time.Second)}}})
	if n := h.ctrl.Transcript().Len(); n != 0 {
		t.Fatalf("transcript entries = %d, want 0", n)
	}
	if n := h.sched.Pending(); n != 0 {
		t.Fatalf("pending buffers = %d, want 0", n)
	}
}

func TestControllerErrorEventTearsDown(t *testing.T) {
	h := newHarness(Config{})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	boom := errors.New("stream reset")
	h.ctrl.Dispatch(Event{Kind: EventErrored, Err: boom})

	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
	select {
	case err := <-h.faults:
		if !errors.Is(err, boom) {
			t.Fatalf("fault = %v, want %v", err, boom)
		}
	default:
		t.Fatalf("fault hook not called")
	}
}

func TestControllerStartWithCancelledContext(t *testing.T) {
	h := newHarness(Config{})
	h.mic.err = errors.New("microphone must not be opened")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.ctrl.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
}

func TestControllerCancelDuringConnectStaysIdle(t *testing.T) {
	h := newHarness(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.connector.onConnect = cancel

	if err := h.ctrl.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if got := h.ctrl.State(); got != StateIdle {
		t.Fatalf("State() = %s, want idle", got)
	}
	if !h.conn.isClosed() {
		t.Fatalf("connection still open after cancelled start")
	}
	if !h.mic.stream.Closed() {
		t.Fatalf("microphone stream still open after cancelled start")
	}
}
