package httpapi

import (
	"net/http"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/capture"
	"github.com/sasa-studio/studio/internal/studio"
)

type uiSettingsResponse struct {
	TranscriptDisplayLimit int                `json:"transcript_display_limit"`
	ImageAspectRatios      []string           `json:"image_aspect_ratios"`
	ImageTiers             []studio.Tier      `json:"image_tiers"`
	VideoResolutions       []string           `json:"video_resolutions"`
	VideoAspectRatios      []string           `json:"video_aspect_ratios"`
	Voices                 []studio.VoiceInfo `json:"voices"`
	CaptureSampleRate      int                `json:"capture_sample_rate"`
	PlaybackSampleRate     int                `json:"playback_sample_rate"`
	CaptureFrameSamples    int                `json:"capture_frame_samples"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		TranscriptDisplayLimit: s.cfg.TranscriptDisplayLimit,
		ImageAspectRatios:      studio.ImageAspectRatios,
		ImageTiers:             []studio.Tier{studio.TierStandard, studio.TierPro},
		VideoResolutions:       studio.VideoResolutions,
		VideoAspectRatios:      studio.VideoAspectRatios,
		Voices:                 studio.VoiceCatalog,
		CaptureSampleRate:      audio.CaptureSampleRate,
		PlaybackSampleRate:     audio.PlaybackSampleRate,
		CaptureFrameSamples:    capture.FrameSamples,
	})
}
