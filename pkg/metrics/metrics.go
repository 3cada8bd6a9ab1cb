// Package metrics exposes the SwarmEngine core's prometheus instruments:
// bus throughput and claim-conflict rate, swarm pipeline counters, and
// policy/approval SLA gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Event Bus metrics
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmengine_bus_queue_depth",
		Help: "Number of non-terminal events currently on the bus",
	})

	ClaimAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_bus_claim_attempts_total",
		Help: "Total number of claim attempts",
	})

	ClaimConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_bus_claim_conflicts_total",
		Help: "Total number of claim attempts that found an active lease",
	})

	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmengine_bus_events_published_total",
		Help: "Total number of events published, by topic",
	}, []string{"topic"})

	DeadLetterTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_bus_dead_letter_total",
		Help: "Total number of events routed to the dead-letter queue",
	})

	SubscriberPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_bus_subscriber_panics_total",
		Help: "Total number of subscriber panics caught by the bus",
	})

	// Swarm pipeline metrics
	TasksDecomposedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_tasks_decomposed_total",
		Help: "Total number of root tasks decomposed into sub-tasks",
	})

	TasksMatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmengine_tasks_matched_total",
		Help: "Total number of successful matches, by tier",
	}, []string{"tier"})

	TaskRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_task_retries_total",
		Help: "Total number of retry events published by Recovery",
	})

	TokensSpentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_tokens_spent_total",
		Help: "Cumulative tokens_used reported across all cost deltas",
	})

	CashSpentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmengine_cash_spent_total",
		Help: "Cumulative cash_used reported across all cost deltas",
	})

	// Policy metrics
	ApprovalsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmengine_approvals_pending",
		Help: "Number of approval records currently pending or reminded",
	})

	ApprovalWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmengine_approval_wait_seconds",
		Help:    "Time from APPROVAL_REQUIRED to APPROVAL_DECISION",
		Buckets: prometheus.DefBuckets,
	})

	ApprovalTimeoutActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmengine_approval_timeout_actions_total",
		Help: "Total number of SLA timeout actions taken, by action",
	}, []string{"action"})
)

// Timer measures an operation's wall-clock duration for a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since NewTimer on h.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

func init() {
	prometheus.MustRegister(
		QueueDepth,
		ClaimAttemptsTotal,
		ClaimConflictsTotal,
		EventsPublishedTotal,
		DeadLetterTotal,
		SubscriberPanicsTotal,
		TasksDecomposedTotal,
		TasksMatchedTotal,
		TaskRetriesTotal,
		TokensSpentTotal,
		CashSpentTotal,
		ApprovalsPending,
		ApprovalWaitSeconds,
		ApprovalTimeoutActionsTotal,
	)
}
