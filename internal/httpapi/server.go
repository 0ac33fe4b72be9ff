package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sasa-studio/studio/internal/config"
	"github.com/sasa-studio/studio/internal/live"
	"github.com/sasa-studio/studio/internal/memory"
	"github.com/sasa-studio/studio/internal/observability"
	"github.com/sasa-studio/studio/internal/reliability"
	"github.com/sasa-studio/studio/internal/session"
	"github.com/sasa-studio/studio/internal/studio"
)

const defaultUserID = "anonymous"

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	studio    *studio.Service
	connector live.Connector
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(cfg config.Config, sessions *session.Manager, svc *studio.Service, connector live.Connector, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		studio:    svc,
		connector: connector,
		metrics:   metrics,
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/ui/settings", s.handleUISettings)

	r.Get("/v1/credential", s.handleGetCredential)
	r.Post("/v1/credential", s.handleSelectCredential)
	r.Delete("/v1/credential", s.handleClearCredential)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/history", s.handleChatHistory)
	r.Post("/v1/images", s.handleGenerateImage)
	r.Get("/v1/images", s.handleListAssets(studio.KindImage))
	r.Post("/v1/videos", s.handleGenerateVideo)
	r.Get("/v1/videos", s.handleListAssets(studio.KindVideo))
	r.Get("/v1/media/{id}", s.handleMedia)

	r.Get("/v1/voice/voices", s.handleListVoices)
	r.Post("/v1/voice/tts", s.handleSynthesize)
	r.Get("/v1/voice/history", s.handleListAssets(studio.KindSpeech))

	r.Post("/v1/live/session", s.handleCreateSession)
	r.Post("/v1/live/session/{id}/end", s.handleEndSession)
	r.Get("/v1/live/session/ws", s.handleLiveWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.studio != nil && s.connector != nil
	status := http.StatusOK
	body := map[string]any{"status": "ready"}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "not_ready"
	}
	if s.studio != nil {
		body["credential_available"] = s.studio.Credentials().APIKey() != ""
	}
	respondJSON(w, status, body)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = userIDFrom(r)
	}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = s.cfg.Presets.Live.Voice
	}
	opts, err := studio.NewLiveOptions(req.Voice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := s.sessions.Create(req.UserID, opts.Voice)
	if err != nil {
		respondError(w, http.StatusConflict, "session_already_active", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		Voice:           sess.Voice,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFailure maps a panel error onto the failure taxonomy.
func respondFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	kind := reliability.Classify(err)
	respondError(w, reliability.HTTPStatus(kind), string(kind), reliability.RedactedError(err))
}

// userIDFrom reads the caller identity. There is no authentication; the
// header only partitions in-memory history.
func userIDFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-ID")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("user_id")); v != "" {
		return v
	}
	return defaultUserID
}

func limitFrom(r *http.Request, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
