package httpapi

import (
	"net/http"

	"github.com/sasa-studio/studio/internal/observability"
	"github.com/sasa-studio/studio/internal/studio"
)

type listVoicesResponse struct {
	DefaultVoice string             `json:"default_voice"`
	LiveVoice    string             `json:"live_voice"`
	Voices       []studio.VoiceInfo `json:"voices"`
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	live := s.cfg.Presets.Live.Voice
	if live == "" {
		live = studio.DefaultVoice
	}
	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultVoice: studio.DefaultVoice,
		LiveVoice:    live,
		Voices:       studio.VoiceCatalog,
	})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	opts, err := studio.NewSpeechOptions(req.Text, req.Voice)
	if err != nil {
		respondFailure(w, err)
		return
	}
	entry, err := observePanel(s.metrics, observability.StageSpeech, func() (studio.AssetEntry, error) {
		return s.studio.Synthesize(r.Context(), userIDFrom(r), opts)
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAssetView(entry))
}
