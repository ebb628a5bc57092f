package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics tracks the prepare/buy/pickup pipeline.
type PurchaseMetrics struct {
	prepared       prometheus.Counter
	committed      prometheus.Counter
	failures       *prometheus.CounterVec
	pickups        prometheus.Counter
	commitDuration prometheus.Histogram
	codeRetries    prometheus.Counter
}

// NewPurchaseMetrics registers the purchase metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	m := &PurchaseMetrics{
		prepared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "prepared_total",
			Help:      "Purchases staged through prepare-purchase.",
		}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "sales_committed_total",
			Help:      "Sales committed by buy-offers.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "failures_total",
			Help:      "Purchase pipeline failures by stage and error code.",
		}, []string{"stage", "code"}),
		pickups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pickup",
			Name:      "completed_total",
			Help:      "Sales marked as picked up.",
		}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "commit_duration_seconds",
			Help:      "Duration of the sale commit transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		codeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "pickup_code_retries_total",
			Help:      "Pickup code collisions that forced a new draw.",
		}),
	}
	reg.MustRegister(m.prepared, m.committed, m.failures, m.pickups, m.commitDuration, m.codeRetries)
	return m
}

func (m *PurchaseMetrics) IncPrepared() {
	if m == nil || m.prepared == nil {
		return
	}
	m.prepared.Inc()
}

func (m *PurchaseMetrics) IncCommitted() {
	if m == nil || m.committed == nil {
		return
	}
	m.committed.Inc()
}

// IncFailure counts a failure at stage (prepare, buy, pickup) with its error code.
func (m *PurchaseMetrics) IncFailure(stage, code string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(stage), normalizeLabel(code)).Inc()
}

func (m *PurchaseMetrics) IncPickup() {
	if m == nil || m.pickups == nil {
		return
	}
	m.pickups.Inc()
}

func (m *PurchaseMetrics) IncCodeRetry() {
	if m == nil || m.codeRetries == nil {
		return
	}
	m.codeRetries.Inc()
}

func (m *PurchaseMetrics) ObserveCommit(duration time.Duration) {
	if m == nil || m.commitDuration == nil {
		return
	}
	m.commitDuration.Observe(duration.Seconds())
}
