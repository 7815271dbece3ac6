package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SubmitPathDirect   = "direct"
	SubmitPathQueued   = "queued"
	SubmitPathDeferred = "deferred"

	OutcomeSynced     = "synced"
	OutcomeRetry      = "retry"
	OutcomeDeadLetter = "dead_letter"
	OutcomeSkipped    = "skipped"
)

// SyncMetrics records submission, queue and reconciliation activity on the device.
type SyncMetrics struct {
	queueDepth   prometheus.Gauge
	submits      *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	passDuration prometheus.Histogram
	online       prometheus.Gauge
	transitions  *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_queue_depth",
		Help: "Pending operations waiting for reconciliation.",
	})
	submits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_submits_total",
		Help: "Order submissions by resolution path.",
	}, []string{"path"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_reconcile_entries_total",
		Help: "Reconciled queue entries by outcome.",
	}, []string{"outcome"})
	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_reconcile_pass_duration_seconds",
		Help:    "Duration of reconciliation passes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_connectivity_online",
		Help: "1 when the order service is reachable, 0 otherwise.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_connectivity_transitions_total",
		Help: "Connectivity transitions by target state.",
	}, []string{"to"})
	reg.MustRegister(queueDepth, submits, outcomes, passDuration, online, transitions)
	return &SyncMetrics{
		queueDepth:   queueDepth,
		submits:      submits,
		outcomes:     outcomes,
		passDuration: passDuration,
		online:       online,
		transitions:  transitions,
	}
}

// SetQueueDepth records the current number of pending operations.
func (m *SyncMetrics) SetQueueDepth(depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// IncSubmit counts a submission resolved through path.
func (m *SyncMetrics) IncSubmit(path string) {
	if m == nil || m.submits == nil {
		return
	}
	m.submits.WithLabelValues(normalizeLabel(path)).Inc()
}

// IncOutcome counts a reconciled entry.
func (m *SyncMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObservePass records the duration of a reconciliation pass.
func (m *SyncMetrics) ObservePass(duration time.Duration) {
	if m == nil || m.passDuration == nil {
		return
	}
	m.passDuration.Observe(duration.Seconds())
}

// SetOnline records the connectivity state and counts the transition.
func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil || m.online == nil {
		return
	}
	to := "offline"
	value := 0.0
	if online {
		to = "online"
		value = 1
	}
	m.online.Set(value)
	m.transitions.WithLabelValues(to).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
