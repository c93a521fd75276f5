// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meeting_minutes"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Stream metrics (gRPC watch streams, agent response streams)
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// gRPC call metrics, labeled by full method and status code
	RPCCalls   *prometheus.CounterVec
	RPCLatency *prometheus.HistogramVec

	// Transcript merge metrics
	SegmentsUpserted  *prometheus.CounterVec
	SegmentsFinalized *prometheus.CounterVec
	SegmentsRejected  *prometheus.CounterVec
	TranscriptClears  prometheus.Counter

	// Audio metrics
	AudioBytesReceived  *prometheus.CounterVec
	AudioFramesReceived *prometheus.CounterVec

	// Decoder metrics
	DecoderLines     *prometheus.CounterVec
	DecoderMalformed prometheus.Counter

	// Translation metrics
	TranslationRequests *prometheus.CounterVec
	TranslationLatency  prometheus.Histogram

	// Minutes metrics
	MinutesGenerations *prometheus.CounterVec
	MinutesLatency     prometheus.Histogram
	MinutesTrimmed     prometheus.Counter

	// Agent runtime metrics
	AgentInvocations *prometheus.CounterVec
	AgentTokens      *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTErrors *prometheus.CounterVec

	// Backpressure metrics
	SegmentLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active streams",
		}),
		StreamsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 1800},
		}),

		RPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_unary_duration_seconds",
			Help:      "Latency of unary gRPC calls in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method"}),

		SegmentsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_upserted_total",
			Help:      "Total number of segment upserts into merged transcripts",
		}, []string{"source", "kind"}),
		SegmentsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_finalized_total",
			Help:      "Total number of segments reaching final state",
		}, []string{"source"}),
		SegmentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rejected_total",
			Help:      "Total number of segments rejected before merge",
		}, []string{"reason"}),
		TranscriptClears: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_clears_total",
			Help:      "Total number of merged transcript clears",
		}),

		AudioBytesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}, []string{"source"}),
		AudioFramesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}, []string{"source"}),

		DecoderLines: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_lines_total",
			Help:      "Total number of stream lines decoded by event kind",
		}, []string{"kind"}),
		DecoderMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_malformed_lines_total",
			Help:      "Total number of stream lines skipped as malformed",
		}),

		TranslationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_requests_total",
			Help:      "Total number of translation requests by outcome",
		}, []string{"outcome"}),
		TranslationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Translation predict latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		MinutesGenerations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minutes_generations_total",
			Help:      "Total number of minutes generations by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		MinutesLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "minutes_latency_seconds",
			Help:      "Minutes generation latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		MinutesTrimmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minutes_transcript_trimmed_total",
			Help:      "Total number of generations whose transcript was trimmed to the token budget",
		}),

		AgentInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_invocations_total",
			Help:      "Total number of agent runtime invocations by path and outcome",
		}, []string{"path", "outcome"}),
		AgentTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tokens_total",
			Help:      "Tokens reported by agent runtime metadata events",
		}, []string{"direction"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "source"}),

		SegmentLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_limit_exceeded_total",
			Help:      "Total number of times source limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordUnaryCall records a completed unary gRPC call.
func (m *Metrics) RecordUnaryCall(method, code string, durationSeconds float64) {
	m.RPCCalls.WithLabelValues(method, code).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(durationSeconds)
}

// RecordStreamCode records the status code a gRPC stream ended with.
func (m *Metrics) RecordStreamCode(method, code string) {
	m.RPCCalls.WithLabelValues(method, code).Inc()
}

// RecordSegmentUpserted records a segment upsert; kind is "partial" or "final".
func (m *Metrics) RecordSegmentUpserted(source, kind string) {
	m.SegmentsUpserted.WithLabelValues(source, kind).Inc()
}

// RecordSegmentFinalized records the first final revision of a segment.
func (m *Metrics) RecordSegmentFinalized(source string) {
	m.SegmentsFinalized.WithLabelValues(source).Inc()
}

// RecordSegmentRejected records a segment rejected before merge.
func (m *Metrics) RecordSegmentRejected(reason string) {
	m.SegmentsRejected.WithLabelValues(reason).Inc()
}

// RecordTranscriptCleared records a clear of merged state.
func (m *Metrics) RecordTranscriptCleared() {
	m.TranscriptClears.Inc()
}

// RecordAudioReceived records audio bytes and frames received for a source.
func (m *Metrics) RecordAudioReceived(source string, bytes int) {
	m.AudioBytesReceived.WithLabelValues(source).Add(float64(bytes))
	m.AudioFramesReceived.WithLabelValues(source).Inc()
}

// RecordDecodedLine records a decoded stream line by event kind.
func (m *Metrics) RecordDecodedLine(kind string) {
	m.DecoderLines.WithLabelValues(kind).Inc()
}

// RecordMalformedLine records a skipped stream line.
func (m *Metrics) RecordMalformedLine() {
	m.DecoderMalformed.Inc()
}

// RecordTranslation records a translation request outcome.
func (m *Metrics) RecordTranslation(outcome string, latencySeconds float64) {
	m.TranslationRequests.WithLabelValues(outcome).Inc()
	if latencySeconds > 0 {
		m.TranslationLatency.Observe(latencySeconds)
	}
}

// RecordMinutes records a minutes generation outcome.
func (m *Metrics) RecordMinutes(trigger, outcome string, latencySeconds float64) {
	m.MinutesGenerations.WithLabelValues(trigger, outcome).Inc()
	if latencySeconds > 0 {
		m.MinutesLatency.Observe(latencySeconds)
	}
}

// RecordMinutesTrimmed records a transcript trimmed to the token budget.
func (m *Metrics) RecordMinutesTrimmed() {
	m.MinutesTrimmed.Inc()
}

// RecordAgentInvocation records an agent runtime invocation outcome.
func (m *Metrics) RecordAgentInvocation(path, outcome string) {
	m.AgentInvocations.WithLabelValues(path, outcome).Inc()
}

// RecordAgentTokens records token usage from a metadata event.
func (m *Metrics) RecordAgentTokens(input, output int) {
	m.AgentTokens.WithLabelValues("input").Add(float64(input))
	m.AgentTokens.WithLabelValues("output").Add(float64(output))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, source string) {
	m.STTErrors.WithLabelValues(provider, source).Inc()
}

// RecordLimitExceeded records when a source limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.SegmentLimitExceeded.WithLabelValues(limitType).Inc()
}
