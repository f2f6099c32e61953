package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine progress for scraping. Purely for display; the
// counters the engine decides with live on the Engine itself.
type Metrics struct {
	BlocksSeen          prometheus.Counter
	TransactionsSent    prometheus.Counter
	SubmissionErrors    prometheus.Counter
	Confirmations       prometheus.Counter
	CacheRefreshes      prometheus.Counter
	ConfirmationLatency prometheus.Histogram
}

// NewMetrics builds the engine metric set. With a nil registerer the metrics
// are created unregistered, which is what the tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BlocksSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "blockreaction_blocks_seen_total",
			Help: "Number of block events observed by the engine.",
		}),
		TransactionsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "blockreaction_transactions_sent_total",
			Help: "Number of transfers accepted by the chain client.",
		}),
		SubmissionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "blockreaction_submission_errors_total",
			Help: "Number of transfer submissions that failed.",
		}),
		Confirmations: factory.NewCounter(prometheus.CounterOpts{
			Name: "blockreaction_confirmations_total",
			Help: "Number of transfers observed as confirmed.",
		}),
		CacheRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "blockreaction_cache_refreshes_total",
			Help: "Number of successful background parameter refreshes.",
		}),
		ConfirmationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "blockreaction_confirmation_latency_seconds",
			Help:    "Wall-clock time from submission to observed confirmation.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}
