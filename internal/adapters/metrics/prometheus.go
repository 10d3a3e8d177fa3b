package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemo_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mnemo_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemo_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"model", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mnemo_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})

	RecallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mnemo_recall_duration_seconds",
		Help:    "Hybrid recall duration",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
	})

	RecallDeadlineMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnemo_recall_deadline_misses_total",
		Help: "Recalls that returned partial results at the deadline",
	})

	MemoriesSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemo_memories_saved_total",
		Help: "Memories written, by tier",
	}, []string{"tier"})

	MemoriesSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnemo_memories_superseded_total",
		Help: "Memories updated in place instead of duplicated",
	})

	AuditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemo_audits_total",
		Help: "Cadence audits run, by outcome",
	}, []string{"outcome"})

	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mnemo_ingest_queue_depth",
		Help: "Ingest events waiting for a worker",
	})

	IngestDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnemo_ingest_dropped_total",
		Help: "Ingest events dropped by backpressure",
	})

	CapsulesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemo_capsules_published_total",
		Help: "Research capsules published, by ttl class",
	}, []string{"ttl_class"})

	ResearchCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnemo_research_cache_total",
		Help: "Research cache lookups, by result",
	}, []string{"result"})

	BusErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnemo_bus_errors_total",
		Help: "Cache bus operations that failed and were degraded",
	})
)
