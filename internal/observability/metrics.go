package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
	PanelRequests     *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	BuffersScheduled  prometheus.Counter
	Interruptions     prometheus.Counter
	FirstAudioLatency prometheus.Histogram
	GenerationLatency *prometheus.HistogramVec

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active live voice sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by stage.",
		}, []string{"stage"}),
		PanelRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panel_requests_total",
			Help:      "Panel requests by panel and outcome.",
		}, []string{"panel", "outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by panel and failure kind.",
		}, []string{"panel", "kind"}),
		BuffersScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_buffers_scheduled_total",
			Help:      "Assistant audio buffers scheduled for playback.",
		}),
		Interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Playback interrupts triggered by the remote side.",
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from live session start to first assistant audio in milliseconds.",
			Buckets:   []float64{300, 500, 700, 900, 1200, 2000, 3000, 5000},
		}),
		GenerationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Panel generation latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"panel"}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.ObserveStage(StageLiveFirstAudio, d)
}

// ObservePanel records one finished panel request. kind is empty on success.
func (m *Metrics) ObservePanel(panel, kind string, d time.Duration) {
	if kind == "" {
		m.PanelRequests.WithLabelValues(panel, "ok").Inc()
		m.GenerationLatency.WithLabelValues(panel).Observe(d.Seconds())
		m.ObserveStage(panel, d)
		return
	}
	m.PanelRequests.WithLabelValues(panel, "error").Inc()
	m.ProviderErrors.WithLabelValues(panel, kind).Inc()
	m.ObserveIndicator(panel + "_" + kind)
}

func (m *Metrics) ObserveOutboundMessage(messageType, outcome string) {
	m.WSMessages.WithLabelValues("outbound_"+outcome, messageType).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
