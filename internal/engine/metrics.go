package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	transactions *prometheus.CounterVec
	applyTime    *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	lastSeq      prometheus.Gauge
	violations   prometheus.Counter
}

// NewMetrics registers the engine collectors with reg. A nil reg creates
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lotbridge",
			Subsystem: "engine",
			Name:      "transactions_total",
			Help:      "Number of applied transactions by method and receipt status",
		}, []string{"method", "status"}),

		applyTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lotbridge",
			Subsystem: "engine",
			Name:      "apply_duration_seconds",
			Help:      "Time to apply and persist one transaction",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"method"}),

		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "lotbridge",
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Number of submitted calls waiting to be applied",
		}),

		lastSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "lotbridge",
			Subsystem: "engine",
			Name:      "last_seq",
			Help:      "Seq of the last persisted transaction",
		}),

		violations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lotbridge",
			Subsystem: "engine",
			Name:      "invariant_violations_total",
			Help:      "Number of transactions after which a conservation invariant failed",
		}),
	}
}
