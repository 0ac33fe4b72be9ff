package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	voice          string
	turns          int
	chunkMS        int
	realtime       float64
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	settle         time.Duration
	texts          []string
	verbose        bool
}

type createSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
	Voice  string `json:"voice,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type speechResponse struct {
	URL string `json:"url"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	State  string `json:"state,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Role   string `json:"role,omitempty"`
	Text   string `json:"text,omitempty"`
}

type audioClip struct {
	Text    string
	PCM16LE []byte
}

var defaultUtterances = []string{
	"Reply in three words: favourite colour?",
	"Reply in three words: best weekend plan?",
	"Reply in three words: describe the sea.",
	"Reply in three words: morning or night?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sasa-perf: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "sasa-perf: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int
	var settleMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "studio base URL")
	flag.StringVar(&cfg.userID, "user-id", "perf-replay", "user_id used for the synthetic session")
	flag.StringVar(&cfg.voice, "voice", "", "optional prebuilt voice for the live session and the clips")
	flag.IntVar(&cfg.turns, "turns", 6, "number of turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 256, "audio chunk size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 1.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 500, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "timeout waiting for the first assistant audio per turn in milliseconds")
	flag.IntVar(&settleMS, "settle-ms", 1500, "quiet period after the last assistant audio that ends a turn")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	if settleMS < 100 {
		settleMS = 100
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	cfg.settle = time.Duration(settleMS) * time.Millisecond
	cfg.texts = splitTexts(textsRaw)
	if len(cfg.texts) == 0 {
		return options{}, fmt.Errorf("texts produced no non-empty utterances")
	}
	return cfg, nil
}

func splitTexts(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...)
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 60 * time.Second}
	clips, err := synthClips(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("prepare utterance audio: %w", err)
	}

	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()
	if cfg.verbose {
		fmt.Printf("sasa-perf: session=%s turns=%d chunk_ms=%d realtime=%.2f\n", sessionID, cfg.turns, cfg.chunkMS, cfg.realtime)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{"X-User-ID": {cfg.userID}})
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	activeCh := make(chan struct{}, 1)
	audioCh := make(chan time.Time, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, activeCh, audioCh, readErrCh, cfg.verbose)

	if err := sendControl(conn, sessionID, protocol.ActionStart); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	if err := awaitActive(activeCh, readErrCh, cfg.turnTimeout); err != nil {
		return fmt.Errorf("await active: %w", err)
	}

	var latencies []time.Duration
	seq := 0
	for i := 0; i < cfg.turns; i++ {
		clip := clips[i%len(clips)]
		if cfg.verbose {
			fmt.Printf("sasa-perf: turn %d/%d text=%q bytes=%d\n", i+1, cfg.turns, clip.Text, len(clip.PCM16LE))
		}
		drain(audioCh)
		if err := sendTurnAudio(conn, sessionID, clip, cfg.chunkMS, cfg.realtime, &seq); err != nil {
			return fmt.Errorf("turn %d send audio: %w", i+1, err)
		}
		spokeAt := time.Now()
		// Trailing silence lets the remote side detect the end of speech.
		if err := sendTurnAudio(conn, sessionID, audioClip{PCM16LE: make([]byte, audio.CaptureSampleRate)}, cfg.chunkMS, cfg.realtime, &seq); err != nil {
			return fmt.Errorf("turn %d send silence: %w", i+1, err)
		}
		first, err := awaitTurn(audioCh, readErrCh, cfg.turnTimeout, cfg.settle)
		if err != nil {
			return fmt.Errorf("turn %d await assistant audio: %w", i+1, err)
		}
		lat := first.Sub(spokeAt)
		latencies = append(latencies, lat)
		if cfg.verbose {
			fmt.Printf("sasa-perf: turn %d first_audio_after_speech=%s\n", i+1, lat.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	_ = sendControl(conn, sessionID, protocol.ActionStop)
	p50, p95 := percentiles(latencies)
	fmt.Printf("sasa-perf: turns=%d p50=%s p95=%s\n", len(latencies), p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	var out createSessionResponse
	if err := postJSON(ctx, client, cfg.baseURL+"/v1/live/session", createSessionRequest{
		UserID: cfg.userID,
		Voice:  strings.TrimSpace(cfg.voice),
	}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/live/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func synthClips(ctx context.Context, client *http.Client, cfg options) ([]audioClip, error) {
	cache := make(map[string]audioClip, len(cfg.texts))
	out := make([]audioClip, 0, len(cfg.texts))
	for _, text := range cfg.texts {
		if existing, ok := cache[text]; ok {
			out = append(out, existing)
			continue
		}
		clip, err := synthClip(ctx, client, cfg, text)
		if err != nil {
			return nil, err
		}
		cache[text] = clip
		out = append(out, clip)
	}
	return out, nil
}

// synthClip speaks text through the voice panel and converts the WAV to the
// capture format.
func synthClip(ctx context.Context, client *http.Client, cfg options, text string) (audioClip, error) {
	var created speechResponse
	if err := postJSON(ctx, client, cfg.baseURL+"/v1/voice/tts", speechRequest{Text: text, Voice: cfg.voice}, &created); err != nil {
		return audioClip{}, fmt.Errorf("synthesize %q: %w", text, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.baseURL+created.URL, nil)
	if err != nil {
		return audioClip{}, err
	}
	req.Header.Set("X-User-ID", cfg.userID)
	res, err := client.Do(req)
	if err != nil {
		return audioClip{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return audioClip{}, err
	}
	if res.StatusCode != http.StatusOK {
		return audioClip{}, fmt.Errorf("fetch %q HTTP %d: %s", text, res.StatusCode, strings.TrimSpace(string(body)))
	}

	pcm, rate, err := audio.DecodeWAV(body)
	if err != nil {
		return audioClip{}, fmt.Errorf("decode wav for %q: %w", text, err)
	}
	samples := audio.Resample(audio.PCM16ToFloat(pcm), rate, audio.CaptureSampleRate)
	if len(samples) == 0 {
		return audioClip{}, fmt.Errorf("wav for %q produced no samples", text)
	}
	return audioClip{Text: text, PCM16LE: audio.FloatToPCM16(samples)}, nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/live/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, activeCh chan<- struct{}, audioCh chan<- time.Time, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeSessionState):
			if env.State == "active" {
				select {
				case activeCh <- struct{}{}:
				default:
				}
			}
		case string(protocol.TypeAssistantAudio):
			select {
			case audioCh <- time.Now():
			default:
			}
		case string(protocol.TypeTranscript):
			if verbose {
				fmt.Printf("sasa-perf: %s: %s\n", env.Role, env.Text)
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "sasa-perf: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func sendTurnAudio(conn *websocket.Conn, sessionID string, clip audioClip, chunkMS int, realtime float64, seq *int) error {
	const sampleRate = audio.CaptureSampleRate
	bytesPerChunk := sampleRate * 2 * chunkMS / 1000
	bytesPerChunk -= bytesPerChunk % 2
	if bytesPerChunk <= 0 {
		return fmt.Errorf("invalid chunk size for chunk_ms=%d", chunkMS)
	}

	for off := 0; off < len(clip.PCM16LE); {
		end := min(off+bytesPerChunk, len(clip.PCM16LE))
		end -= (end - off) % 2
		if end <= off {
			break
		}
		*seq = *seq + 1
		msg := protocol.ClientAudioChunk{
			Type:        protocol.TypeClientAudioChunk,
			SessionID:   sessionID,
			Seq:         *seq,
			PCM16Base64: audio.EncodeBase64(clip.PCM16LE[off:end]),
			SampleRate:  sampleRate,
			TSMs:        time.Now().UnixMilli(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		chunkDuration := time.Duration(float64(audio.DurationOfPCM16(end-off, sampleRate)) / realtime)
		off = end
		if chunkDuration <= 0 {
			chunkDuration = 10 * time.Millisecond
		}
		time.Sleep(chunkDuration)
	}
	return nil
}

func sendControl(conn *websocket.Conn, sessionID, action string) error {
	return conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    action,
		TSMs:      time.Now().UnixMilli(),
	})
}

func awaitActive(activeCh <-chan struct{}, readErrCh <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-activeCh:
		return nil
	case err := <-readErrCh:
		return err
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	}
}

// awaitTurn returns when the first assistant audio of the turn arrived, once
// no further audio has come for settle.
func awaitTurn(audioCh <-chan time.Time, readErrCh <-chan error, timeout, settle time.Duration) (time.Time, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var first time.Time
	select {
	case first = <-audioCh:
	case err := <-readErrCh:
		return time.Time{}, err
	case <-timer.C:
		return time.Time{}, fmt.Errorf("timeout after %s", timeout)
	}
	for {
		select {
		case <-audioCh:
		case err := <-readErrCh:
			return time.Time{}, err
		case <-time.After(settle):
			return first, nil
		}
	}
}

func drain(ch <-chan time.Time) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func percentiles(ds []time.Duration) (p50, p95 time.Duration) {
	if len(ds) == 0 {
		return 0, 0
	}
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return at(0.50), at(0.95)
}
