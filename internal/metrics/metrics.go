// Package metrics provides Prometheus metrics for the calling pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Region metrics
	RegionsProcessed *prometheus.CounterVec
	RegionsInFlight  prometheus.Gauge

	// Read metrics
	ReadsExtracted *prometheus.CounterVec

	// Variant metrics
	VariantsCalled *prometheus.CounterVec

	// Timing metrics
	RegionDuration     *prometheus.HistogramVec
	SubprocessDuration *prometheus.HistogramVec
	RunDuration        *prometheus.HistogramVec

	// Sidecar errors
	PublishErrors *prometheus.CounterVec
	CatalogErrors *prometheus.CounterVec
	EventErrors   *prometheus.CounterVec
}

var defaultMetrics *Metrics

// Init initializes the global metrics. Call once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "denovar"
	}

	m := &Metrics{
		RegionsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regions_processed_total",
				Help:      "Total regions processed, by sample and outcome",
			},
			[]string{"sample", "outcome"},
		),
		RegionsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "regions_in_flight",
				Help:      "Regions currently being processed",
			},
		),
		ReadsExtracted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reads_extracted_total",
				Help:      "Total reads extracted to region FASTQ files",
			},
			[]string{"sample"},
		),
		VariantsCalled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "variants_called_total",
				Help:      "Total variant records across region outputs",
			},
			[]string{"sample"},
		),
		RegionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "region_duration_seconds",
				Help:      "Wall time per region, all stages included",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"sample", "outcome"},
		),
		SubprocessDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "subprocess_duration_seconds",
				Help:      "Wall time of external toolchain subprocesses",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s to ~27m
			},
			[]string{"tool"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of whole calling runs",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~18h
			},
			[]string{"sample"},
		),
		PublishErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_errors_total",
				Help:      "Total artifact publication errors",
			},
			[]string{"sample", "backend"},
		),
		CatalogErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total catalog write errors",
			},
			[]string{"sample"},
		),
		EventErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_errors_total",
				Help:      "Total provenance event emission errors",
			},
			[]string{"sample"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, nil before Init. Callers
// guard on nil so metrics stay optional.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer serves /metrics and /health. Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncRegionsProcessed increments the per-outcome region counter.
func (m *Metrics) IncRegionsProcessed(sample, outcome string) {
	m.RegionsProcessed.WithLabelValues(sample, outcome).Inc()
}

// AddReadsExtracted adds to the extracted-reads counter.
func (m *Metrics) AddReadsExtracted(sample string, count float64) {
	m.ReadsExtracted.WithLabelValues(sample).Add(count)
}

// AddVariantsCalled adds to the called-variants counter.
func (m *Metrics) AddVariantsCalled(sample string, count float64) {
	m.VariantsCalled.WithLabelValues(sample).Add(count)
}

// ObserveRegionDuration records the wall time of one region.
func (m *Metrics) ObserveRegionDuration(sample, outcome string, seconds float64) {
	m.RegionDuration.WithLabelValues(sample, outcome).Observe(seconds)
}

// ObserveSubprocessDuration records the wall time of one subprocess.
func (m *Metrics) ObserveSubprocessDuration(tool string, seconds float64) {
	m.SubprocessDuration.WithLabelValues(tool).Observe(seconds)
}

// ObserveRunDuration records the wall time of a whole run.
func (m *Metrics) ObserveRunDuration(sample string, seconds float64) {
	m.RunDuration.WithLabelValues(sample).Observe(seconds)
}

// IncPublishErrors increments the publication error counter.
func (m *Metrics) IncPublishErrors(sample, backend string) {
	m.PublishErrors.WithLabelValues(sample, backend).Inc()
}

// IncCatalogErrors increments the catalog error counter.
func (m *Metrics) IncCatalogErrors(sample string) {
	m.CatalogErrors.WithLabelValues(sample).Inc()
}

// IncEventErrors increments the event emission error counter.
func (m *Metrics) IncEventErrors(sample string) {
	m.EventErrors.WithLabelValues(sample).Inc()
}
