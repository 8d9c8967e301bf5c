// Package metrics holds the Prometheus collectors for the assistant.
//
// All Record methods are safe on a nil *Metrics, so components take an
// optional *Metrics and never check for it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the assistant.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation metrics
	ChatTurnsTotal   *prometheus.CounterVec
	ChatTurnDuration prometheus.Histogram
	TokensTotal      *prometheus.CounterVec

	// Language metrics
	DetectionsTotal   *prometheus.CounterVec
	TranslationsTotal *prometheus.CounterVec

	// Voice session metrics
	VoiceSessionsActive prometheus.Gauge
	VoiceSessionsTotal  prometheus.Counter
	VoiceStateTotal     *prometheus.CounterVec

	// Backend endpoints
	AnalysesTotal *prometheus.CounterVec
	SMSTotal      *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with every collector registered on
// its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "saathi"
	}

	registry := prometheus.NewRegistry()

	chatTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome (ok, error, rejected)",
		},
		[]string{"outcome", "language"},
	)

	chatTurnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_duration_seconds",
			Help:      "Duration of accepted chat turns",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Model tokens by purpose and direction",
		},
		[]string{"purpose", "direction"},
	)

	detectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_detections_total",
			Help:      "Language detections by method and result",
		},
		[]string{"method", "language"},
	)

	translationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translation lookups by result (skip, hit, miss, error)",
		},
		[]string{"result"},
	)

	voiceSessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Number of open voice sessions",
		},
	)

	voiceSessionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_total",
			Help:      "Total number of voice sessions opened",
		},
	)

	voiceStateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_state_transitions_total",
			Help:      "Voice state transitions by target state",
		},
		[]string{"state"},
	)

	analysesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parameter_analyses_total",
			Help:      "Credit parameter analyses by source (model, fallback, error)",
		},
		[]string{"source"},
	)

	smsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_total",
			Help:      "OTP messages by status (sent, rejected, error)",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		chatTurnsTotal,
		chatTurnDuration,
		tokensTotal,
		detectionsTotal,
		translationsTotal,
		voiceSessionsActive,
		voiceSessionsTotal,
		voiceStateTotal,
		analysesTotal,
		smsTotal,
	)

	return &Metrics{
		registry:            registry,
		ChatTurnsTotal:      chatTurnsTotal,
		ChatTurnDuration:    chatTurnDuration,
		TokensTotal:         tokensTotal,
		DetectionsTotal:     detectionsTotal,
		TranslationsTotal:   translationsTotal,
		VoiceSessionsActive: voiceSessionsActive,
		VoiceSessionsTotal:  voiceSessionsTotal,
		VoiceStateTotal:     voiceStateTotal,
		AnalysesTotal:       analysesTotal,
		SMSTotal:            smsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordChatTurn records a finished chat call.
func (m *Metrics) RecordChatTurn(outcome, language string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ChatTurnsTotal.WithLabelValues(outcome, language).Inc()
	if outcome != "rejected" {
		m.ChatTurnDuration.Observe(duration.Seconds())
	}
}

// RecordTokens records token usage for one model call.
func (m *Metrics) RecordTokens(purpose string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.TokensTotal.WithLabelValues(purpose, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensTotal.WithLabelValues(purpose, "output").Add(float64(outputTokens))
	}
}

// RecordDetection records how a language was inferred.
func (m *Metrics) RecordDetection(method, language string) {
	if m == nil {
		return
	}
	m.DetectionsTotal.WithLabelValues(method, language).Inc()
}

// RecordTranslation records a translation lookup result.
func (m *Metrics) RecordTranslation(result string) {
	if m == nil {
		return
	}
	m.TranslationsTotal.WithLabelValues(result).Inc()
}

// RecordVoiceSessionStart records a voice session being opened.
func (m *Metrics) RecordVoiceSessionStart() {
	if m == nil {
		return
	}
	m.VoiceSessionsActive.Inc()
	m.VoiceSessionsTotal.Inc()
}

// RecordVoiceSessionEnd records a voice session being closed.
func (m *Metrics) RecordVoiceSessionEnd() {
	if m == nil {
		return
	}
	m.VoiceSessionsActive.Dec()
}

// RecordVoiceState records a voice state transition.
func (m *Metrics) RecordVoiceState(state string) {
	if m == nil {
		return
	}
	m.VoiceStateTotal.WithLabelValues(state).Inc()
}

// RecordAnalysis records a credit parameter analysis.
func (m *Metrics) RecordAnalysis(source string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(source).Inc()
}

// RecordSMS records an OTP send attempt.
func (m *Metrics) RecordSMS(status string) {
	if m == nil {
		return
	}
	m.SMSTotal.WithLabelValues(status).Inc()
}
