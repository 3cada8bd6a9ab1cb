package bus

import "time"

// MetricsSnapshot is a point-in-time view of bus health.
type MetricsSnapshot struct {
	QueueDepth         int
	ClaimConflictRate  float64
	RetryStorm         bool
	ThroughputLastHour int
	TokensUsedTotal    int64
	CashUsedTotal      float64
}

const retryStormThreshold = 0.5

// GetMetricsSnapshot summarizes current bus health: queue depth, the
// trailing-minute claim conflict rate, a retry-storm flag, one-hour
// throughput, and cumulative token/cash cost.
func (b *Bus) GetMetricsSnapshot() MetricsSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	depth := 0
	throughput := 0
	var tokens int64
	var cash float64
	cutoff := time.Now().Add(-time.Hour)

	for _, e := range b.events {
		if !e.Status.Terminal() {
			depth++
		}
		if e.CreatedAt.After(cutoff) {
			throughput++
		}
		if e.CostDelta != nil {
			tokens += e.CostDelta.TokensUsed
			cash += e.CostDelta.CashUsed
		}
	}

	rate := b.conflicts.Rate()

	return MetricsSnapshot{
		QueueDepth:         depth,
		ClaimConflictRate:  rate,
		RetryStorm:         rate >= retryStormThreshold,
		ThroughputLastHour: throughput,
		TokensUsedTotal:    tokens,
		CashUsedTotal:      cash,
	}
}
