package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quakemap"

// Metrics holds the Prometheus counters, histograms, and gauges for the map service.
type Metrics struct {
	Renders          *prometheus.CounterVec // labels: outcome={success,network_error,data_shape_error,render_error,invalid_window,canceled}
	RenderDuration   prometheus.Histogram
	FeaturesSkipped  prometheus.Counter
	MarkersMounted   prometheus.Gauge
	RenderGeneration prometheus.Gauge
	StaleRenders     prometheus.Counter

	// Feed fetch metrics.
	FeedRequests *prometheus.CounterVec   // labels: feed={earthquakes,plates}, outcome={success,error,not_modified}
	FeedDuration *prometheus.HistogramVec // labels: feed
	FeedCache    *prometheus.CounterVec   // labels: feed, result={hit,miss}

	PublishErrors prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Renders,
		m.RenderDuration,
		m.FeaturesSkipped,
		m.MarkersMounted,
		m.RenderGeneration,
		m.StaleRenders,
		m.FeedRequests,
		m.FeedDuration,
		m.FeedCache,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Map renders by outcome.",
		}, []string{"outcome"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of a complete fetch-encode-assemble render.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		FeaturesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_skipped_total",
			Help:      "Earthquake features skipped for missing location or bad shape.",
		}),
		MarkersMounted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markers_mounted",
			Help:      "Markers in the currently mounted map session.",
		}),
		RenderGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_generation",
			Help:      "Generation of the most recently started render.",
		}),
		StaleRenders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_renders_total",
			Help:      "Renders discarded because a newer render had started.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Upstream feed requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FeedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"feed"}),
		FeedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cache_total",
			Help:      "Feed cache lookups by feed and result.",
		}, []string{"feed", "result"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed marker publishes to Kafka.",
		}),
	}
}
