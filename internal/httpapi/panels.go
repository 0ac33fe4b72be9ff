package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sasa-studio/studio/internal/observability"
	"github.com/sasa-studio/studio/internal/reliability"
	"github.com/sasa-studio/studio/internal/studio"
)

const defaultListLimit = 50

type chatRequest struct {
	Prompt string `json:"prompt"`
	Search bool   `json:"search"`
}

type imageRequest struct {
	Prompt      string      `json:"prompt"`
	Tier        studio.Tier `json:"tier"`
	AspectRatio string      `json:"aspect_ratio"`
}

type videoRequest struct {
	Prompt      string `json:"prompt"`
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspect_ratio"`
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type credentialResponse struct {
	Selected  bool `json:"selected"`
	Available bool `json:"available"`
}

// assetView is an asset record with a link to its bytes.
type assetView struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	URL       string       `json:"url"`
	Asset     studio.Asset `json:"asset"`
}

func toAssetView(e studio.AssetEntry) assetView {
	return assetView{
		ID:        e.ID,
		CreatedAt: e.CreatedAt,
		URL:       "/v1/media/" + e.ID,
		Asset:     e.Value,
	}
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	creds := s.studio.Credentials()
	respondJSON(w, http.StatusOK, credentialResponse{
		Selected:  creds.HasSelected(r.Context()),
		Available: creds.APIKey() != "",
	})
}

func (s *Server) handleSelectCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	creds := s.studio.Credentials()
	if err := creds.Select(r.Context(), req.APIKey); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, credentialResponse{Selected: true, Available: true})
}

func (s *Server) handleClearCredential(w http.ResponseWriter, r *http.Request) {
	creds := s.studio.Credentials()
	creds.Clear()
	respondJSON(w, http.StatusOK, credentialResponse{
		Selected:  false,
		Available: creds.APIKey() != "",
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	opts, err := studio.NewChatOptions(req.Prompt, req.Search)
	if err != nil {
		respondFailure(w, err)
		return
	}
	entry, err := observePanel(s.metrics, observability.StageChat, func() (studio.ChatEntry, error) {
		return s.studio.Chat(r.Context(), userIDFrom(r), opts)
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.studio.ChatHistory(r.Context(), userIDFrom(r), limitFrom(r, 0))
	if err != nil {
		respondFailure(w, err)
		return
	}
	if entries == nil {
		entries = []studio.ChatEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	opts, err := studio.NewImageOptions(req.Prompt, req.Tier, req.AspectRatio)
	if err != nil {
		respondFailure(w, err)
		return
	}
	entry, err := observePanel(s.metrics, observability.StageImage, func() (studio.AssetEntry, error) {
		return s.studio.GenerateImage(r.Context(), userIDFrom(r), opts)
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAssetView(entry))
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	opts, err := studio.NewVideoOptions(req.Prompt, req.Resolution, req.AspectRatio)
	if err != nil {
		respondFailure(w, err)
		return
	}
	// Video generation outlives impatient clients; keep polling if the
	// browser drops so the clip still lands in history.
	ctx := context.WithoutCancel(r.Context())
	entry, err := observePanel(s.metrics, observability.StageVideo, func() (studio.AssetEntry, error) {
		return s.studio.GenerateVideo(ctx, userIDFrom(r), opts)
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAssetView(entry))
}

func (s *Server) handleListAssets(kind studio.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.studio.Assets(r.Context(), userIDFrom(r), kind, limitFrom(r, defaultListLimit))
		if err != nil {
			respondFailure(w, err)
			return
		}
		out := make([]assetView, 0, len(entries))
		for _, e := range entries {
			out = append(out, toAssetView(e))
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	entry, err := s.studio.Asset(r.Context(), userIDFrom(r), id)
	if err != nil {
		respondFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", entry.Value.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Value.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Value.Data)
}

// observePanel times fn and records the outcome under panel.
func observePanel[T any](m *observability.Metrics, panel string, fn func() (T, error)) (T, error) {
	started := time.Now()
	out, err := fn()
	if m != nil {
		kind := ""
		if err != nil {
			kind = string(reliability.Classify(err))
		}
		m.ObservePanel(panel, kind, time.Since(started))
	}
	return out, err
}
