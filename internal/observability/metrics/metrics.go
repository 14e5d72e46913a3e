// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_voice_relay"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Relay metrics
	RelaysTotal     prometheus.Counter
	RelaysActive    prometheus.Gauge
	RelaysSuccess   prometheus.Counter
	RelaysFailed    *prometheus.CounterVec
	RelayDuration   prometheus.Histogram
	RelayAttempts   prometheus.Histogram
	SessionCreation *prometheus.CounterVec

	// Session metrics
	SessionStates      *prometheus.CounterVec
	InboundFrames      prometheus.Counter
	InboundAudioBytes  prometheus.Counter
	OutboundChunks     prometheus.Counter
	OutboundAudioBytes prometheus.Counter
	ControlFrames      *prometheus.CounterVec
	ProtocolViolations prometheus.Counter

	// Transcoder metrics
	TranscodeTotal   *prometheus.CounterVec
	TranscodeLatency *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RelaysTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Total number of relays started",
		}),
		RelaysActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays_active",
			Help:      "Number of relays currently in flight",
		}),
		RelaysSuccess: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_success_total",
			Help:      "Total number of relays that produced a reply",
		}),
		RelaysFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_failed_total",
			Help:      "Total number of relays that produced no reply",
		}, []string{"reason"}),
		RelayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "End-to-end relay duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		RelayAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_attempts",
			Help:      "Number of call sessions used per relay",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		SessionCreation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_creation_total",
			Help:      "Voice engine session creation calls by HTTP status",
		}, []string{"status"}),

		SessionStates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total number of session state transitions by target state",
		}, []string{"state"}),
		InboundFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_audio_frames_total",
			Help:      "Total binary frames received from the voice engine",
		}),
		InboundAudioBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_audio_bytes_total",
			Help:      "Total audio bytes received from the voice engine",
		}),
		OutboundChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_audio_chunks_total",
			Help:      "Total PCM chunks sent to the voice engine",
		}),
		OutboundAudioBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_audio_bytes_total",
			Help:      "Total PCM bytes sent to the voice engine",
		}),
		ControlFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_frames_total",
			Help:      "Total control frames received by kind",
		}, []string{"kind"}),
		ProtocolViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Total text frames that could not be decoded",
		}),

		TranscodeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcode_total",
			Help:      "Total transcoder runs by job and outcome",
		}, []string{"job", "outcome"}),
		TranscodeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcode_duration_seconds",
			Help:      "Transcoder run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"job"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC calls by method and status code",
		}, []string{"method", "code"}),
	}
}

// RecordRelayStart records a new relay starting.
func (m *Metrics) RecordRelayStart() {
	m.RelaysTotal.Inc()
	m.RelaysActive.Inc()
}

// RecordRelayEnd records a relay ending. An empty reason marks success.
func (m *Metrics) RecordRelayEnd(reason string, attempts int, durationSeconds float64) {
	m.RelaysActive.Dec()
	m.RelayDuration.Observe(durationSeconds)
	m.RelayAttempts.Observe(float64(attempts))
	if reason == "" {
		m.RelaysSuccess.Inc()
		return
	}
	m.RelaysFailed.WithLabelValues(reason).Inc()
}

// RecordSessionCreation records a session creation call. Status 0 means
// the request never got a response.
func (m *Metrics) RecordSessionCreation(status int) {
	label := "error"
	if status > 0 {
		label = statusClass(status)
	}
	m.SessionCreation.WithLabelValues(label).Inc()
}

// RecordSessionState records a transition into state.
func (m *Metrics) RecordSessionState(state string) {
	m.SessionStates.WithLabelValues(state).Inc()
}

// RecordInboundAudio records one binary frame from the engine.
func (m *Metrics) RecordInboundAudio(bytes int) {
	m.InboundFrames.Inc()
	m.InboundAudioBytes.Add(float64(bytes))
}

// RecordOutboundChunk records one PCM chunk sent to the engine.
func (m *Metrics) RecordOutboundChunk(bytes int) {
	m.OutboundChunks.Inc()
	m.OutboundAudioBytes.Add(float64(bytes))
}

// RecordControlFrame records a decoded control frame.
func (m *Metrics) RecordControlFrame(kind string) {
	m.ControlFrames.WithLabelValues(kind).Inc()
}

// RecordProtocolViolation records an undecodable text frame.
func (m *Metrics) RecordProtocolViolation() {
	m.ProtocolViolations.Inc()
}

// RecordTranscode records one transcoder run.
func (m *Metrics) RecordTranscode(job string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TranscodeTotal.WithLabelValues(job, outcome).Inc()
	m.TranscodeLatency.WithLabelValues(job).Observe(seconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCRequest records a completed gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
