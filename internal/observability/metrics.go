package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nsxenrich"

// Metrics holds Prometheus metrics for the enrichment service
type Metrics struct {
	// Enrichment metrics
	EnrichmentRequests *prometheus.CounterVec
	EnrichmentDuration *prometheus.HistogramVec

	// Workflow metrics
	TaskResolutions *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	SampleDownloads *prometheus.CounterVec
	ReportFetches   *prometheus.CounterVec

	// MITRE ATT&CK metrics
	MITREMappings prometheus.Counter
	CatalogSize   prometheus.Gauge

	// Rate limiting
	RateLimited *prometheus.CounterVec

	// API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the service metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EnrichmentRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_requests_total",
				Help:      "Enrichment queries by attribute type and outcome (full, partial, error)",
			},
			[]string{"attribute_type", "outcome"},
		),
		EnrichmentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "enrichment_duration_seconds",
				Help:      "Enrichment duration by attribute type",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"attribute_type"},
		),
		TaskResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_resolutions_total",
				Help:      "Hash lookups against the analysis endpoints",
			},
			[]string{"outcome"},
		),
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Submissions to the primary analysis endpoint",
			},
			[]string{"kind", "state"},
		),
		SampleDownloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sample_downloads_total",
				Help:      "Sample downloads from VirusTotal",
			},
			[]string{"status"},
		),
		ReportFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_fetches_total",
				Help:      "Analysis report fetches",
			},
			[]string{"status"},
		),
		MITREMappings: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mitre_mappings_total",
				Help:      "Total MITRE ATT&CK technique tags applied",
			},
		),
		CatalogSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mitre_catalog_techniques",
				Help:      "Techniques in the most recently loaded ATT&CK catalog",
			},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "path"},
		),
	}
}
