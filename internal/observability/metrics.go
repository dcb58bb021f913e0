package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the listing service.
// Metrics are organized by subsystem: listing, counters, review events and
// HTTP. All counters and histograms are registered via promauto with the
// default Prometheus registry.
type Metrics struct {
	// ListingRequests counts listing requests, labeled by effective sort mode and outcome.
	ListingRequests *prometheus.CounterVec

	// ListingDuration observes listing latency in seconds, labeled by sort mode.
	ListingDuration *prometheus.HistogramVec

	// ListingRows observes the number of rows returned per page.
	ListingRows prometheus.Histogram

	// CursorsDiscarded counts client cursors that were malformed or stale, labeled by sort mode.
	CursorsDiscarded *prometheus.CounterVec

	// CounterMutations counts counter mutations, labeled by operation and outcome.
	CounterMutations *prometheus.CounterVec

	// CounterMutationDuration observes counter transaction latency in seconds, labeled by operation.
	CounterMutationDuration *prometheus.HistogramVec

	// ReviewEvents counts consumed review events, labeled by event type and outcome.
	ReviewEvents *prometheus.CounterVec

	// RateLimited counts requests rejected by the HTTP rate limiter, labeled by route.
	RateLimited *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Listing
		ListingRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_requests_total",
			Help:      "Total number of listing requests",
		}, []string{"sort", "outcome"}),
		ListingDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listing_duration_seconds",
			Help:      "Duration of listing requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"sort"}),
		ListingRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listing_rows",
			Help:      "Number of rows returned per listing page",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 50},
		}),
		CursorsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_cursors_discarded_total",
			Help:      "Total number of malformed or stale cursors treated as absent",
		}, []string{"sort"}),

		// Counters
		CounterMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_mutations_total",
			Help:      "Total number of counter mutations",
		}, []string{"operation", "outcome"}),
		CounterMutationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "counter_mutation_duration_seconds",
			Help:      "Duration of counter mutation transactions in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),

		// Review events
		ReviewEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_events_total",
			Help:      "Total number of review events consumed",
		}, []string{"type", "outcome"}),

		// HTTP
		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}, []string{"route"}),
	}
}

// RecordListing records a completed listing request.
func (m *Metrics) RecordListing(sort, outcome string, duration time.Duration, rows int) {
	m.ListingRequests.WithLabelValues(sort, outcome).Inc()
	m.ListingDuration.WithLabelValues(sort).Observe(duration.Seconds())
	if outcome == "success" {
		m.ListingRows.Observe(float64(rows))
	}
}

// RecordCursorDiscarded records a cursor that could not be applied.
func (m *Metrics) RecordCursorDiscarded(sort string) {
	m.CursorsDiscarded.WithLabelValues(sort).Inc()
}

// RecordCounterMutation records a counter transaction.
func (m *Metrics) RecordCounterMutation(operation, outcome string, duration time.Duration) {
	m.CounterMutations.WithLabelValues(operation, outcome).Inc()
	m.CounterMutationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReviewEvent records a consumed review event.
func (m *Metrics) RecordReviewEvent(eventType, outcome string) {
	m.ReviewEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordRateLimited records a rejected request.
func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}
