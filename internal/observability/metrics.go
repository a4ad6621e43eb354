package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nwm_extract"

// Metrics holds the Prometheus counters, histograms, and gauges for extraction runs.
type Metrics struct {
	ExtractionsTotal *prometheus.CounterVec // labels: outcome={ok,empty_selection,out_of_range,...}
	RowsWritten      prometheus.Counter
	RowsPublished    prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Per-job metrics.
	JobFeatures        prometheus.Histogram
	ExtractionDuration prometheus.Histogram

	// Remote store metrics.
	StoreRequests        *prometheus.CounterVec   // labels: backend={s3,http,file,mem}, outcome={success,not_found,error}
	StoreRetries         *prometheus.CounterVec   // labels: backend
	StoreBytes           *prometheus.CounterVec   // labels: backend
	StoreRequestDuration *prometheus.HistogramVec // labels: backend
	ChunkCache           *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction jobs by outcome class.",
		}, []string{"outcome"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Total result rows written to output files.",
		}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_published_total",
			Help:      "Total result rows published to the Kafka sink topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while extraction jobs are running, 0 otherwise.",
		}),
		JobFeatures: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_features",
			Help:      "Number of feature identifiers requested per job.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Duration of a complete extract-materialize-write job.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		StoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Object store GET requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		StoreRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Object store requests retried after a transient failure.",
		}, []string{"backend"}),
		StoreBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_bytes_read_total",
			Help:      "Bytes read from the object store.",
		}, []string{"backend"}),
		StoreRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_request_duration_seconds",
			Help:      "Object store request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend"}),
		ChunkCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_cache_total",
			Help:      "Chunk cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.ExtractionsTotal,
		m.RowsWritten,
		m.RowsPublished,
		m.PipelineRunning,
		m.JobFeatures,
		m.ExtractionDuration,
		m.StoreRequests,
		m.StoreRetries,
		m.StoreBytes,
		m.StoreRequestDuration,
		m.ChunkCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ExtractionsTotal:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "extractions_total"}, []string{"outcome"}),
		RowsWritten:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rows_written_total"}),
		RowsPublished:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rows_published_total"}),
		PipelineRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		JobFeatures:          prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "job_features"}),
		ExtractionDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "extraction_duration_seconds"}),
		StoreRequests:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "store_requests_total"}, []string{"backend", "outcome"}),
		StoreRetries:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "store_retries_total"}, []string{"backend"}),
		StoreBytes:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "store_bytes_read_total"}, []string{"backend"}),
		StoreRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "store_request_duration_seconds"}, []string{"backend"}),
		ChunkCache:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "chunk_cache_total"}, []string{"result"}),
	}
}
