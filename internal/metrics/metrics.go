package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_ingest_total",
			Help: "Total number of ingestion attempts by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "created", "deduplicated", "failed"
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_ingest_duration_seconds",
			Help:    "End-to-end ingestion duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	IngestBytesHashed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_ingest_bytes_hashed_total",
			Help: "Total number of original bytes hashed during ingestion",
		},
	)

	DedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_dedup_hits_total",
			Help: "Total number of ingestions short-circuited by the dedup index",
		},
	)

	DedupReservationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_dedup_reservations_active",
			Help: "Number of content-hash reservations currently held",
		},
	)
)

// Variant generation metrics
var (
	VariantRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_variant_render_duration_seconds",
			Help:    "Duration of a single variant render in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"preset", "format"},
	)

	VariantRenderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_variant_render_errors_total",
			Help: "Total number of failed variant renders",
		},
		[]string{"preset", "format"},
	)

	TranscodeRungDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_transcode_rung_duration_seconds",
			Help:    "Duration of a single video transcode rung in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"rung"},
	)

	TranscodeRungFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_transcode_rung_failures_total",
			Help: "Total number of failed video transcode rungs",
		},
		[]string{"rung"},
	)
)

// Catalog metrics
var (
	CatalogQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_catalog_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	CatalogQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_catalog_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	CatalogAssets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_pipeline_catalog_assets",
			Help: "Number of assets in the catalog by kind",
		},
		[]string{"kind"},
	)
)

// Delivery metrics
var (
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_upload_bytes_total",
			Help: "Total number of variant bytes uploaded by backend",
		},
		[]string{"backend"},
	)

	UploadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_upload_errors_total",
			Help: "Total number of failed variant uploads by backend",
		},
		[]string{"backend"},
	)

	UploadRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_upload_retries_total",
			Help: "Total number of upload retry attempts by backend",
		},
		[]string{"backend"},
	)

	ResolveCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_resolve_cache_hits_total",
			Help: "Total number of delivery resolutions served from the LRU cache",
		},
	)

	ResolveCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_resolve_cache_misses_total",
			Help: "Total number of delivery resolutions that missed the LRU cache",
		},
	)
)

// Analytics metrics
var (
	ServeEventsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_serve_events_recorded_total",
			Help: "Total number of serve events accepted by the recorder",
		},
	)

	ServeEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_serve_events_dropped_total",
			Help: "Total number of serve events dropped due to a full buffer",
		},
	)

	RecommendationRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_recommendation_runs_total",
			Help: "Total number of optimization advisor runs",
		},
	)
)

// Worker pool metrics
var (
	BatchItemsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_batch_items_in_flight",
			Help: "Number of batch ingestion items currently being processed",
		},
	)

	BatchItemsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_batch_items_queued",
			Help: "Number of batch ingestion items waiting for a worker",
		},
	)
)
