// Package metrics defines Prometheus metrics for recall.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	EmbedQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_embed_queue_depth",
			Help: "Current embedding queue depth",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)

	// StageDuration observes each retrieval pipeline stage.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_retrieve_stage_duration_seconds",
			Help:    "Retrieval pipeline stage duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	// DegradedTotal counts responses carrying a degradation flag.
	DegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_degraded_responses_total",
			Help: "Responses served in a degraded mode, by flag",
		},
		[]string{"flag"},
	)

	BufferFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_buffer_flushes_total",
			Help: "Conversation buffer flushes by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	BufferedMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_buffered_messages",
			Help: "Messages currently held in conversation buffers",
		},
	)

	ResolverCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_resolver_cache_total",
			Help: "Person resolver cache lookups by result",
		},
		[]string{"result"},
	)

	ChunkCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_chunks_total",
			Help: "Total indexed chunk count",
		},
	)

	ChunksMissingEmbedding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_chunks_missing_embedding",
			Help: "Chunks stored without a dense embedding",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		EmbedQueueDepth, WSConnections,
		StageDuration, DegradedTotal,
		BufferFlushes, BufferedMessages,
		ResolverCache, ChunkCount, ChunksMissingEmbedding,
	)
}
