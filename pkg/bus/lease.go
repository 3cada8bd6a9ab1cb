package bus

import (
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/types"
)

// ClaimResult is the outcome of a Claim call.
type ClaimResult struct {
	OK          bool
	LeaseExpiry time.Time
	Reason      string
}

// LeaseForRisk returns the lease duration a Claim at this risk level would
// receive absent an explicit request, so callers (the Executor's heartbeat
// ticker) can size themselves relative to it without guessing.
func LeaseForRisk(risk types.RiskLevel) time.Duration {
	return leaseDuration(risk, 0)
}

func leaseDuration(risk types.RiskLevel, requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if risk == types.RiskHigh {
		return highRiskLease
	}
	return defaultLease
}

// Claim attempts to take exclusive, lease-protected ownership of an event.
// Succeeds iff no active lease currently exists; first writer wins.
func (b *Bus) Claim(eventID, agentID string, leaseMS int64) ClaimResult {
	metrics.ClaimAttemptsTotal.Inc()

	b.mu.Lock()
	event, ok := b.events[eventID]
	if !ok {
		b.mu.Unlock()
		b.conflicts.record(false)
		return ClaimResult{OK: false, Reason: "not found"}
	}
	if event.Status.Terminal() {
		b.mu.Unlock()
		b.conflicts.record(false)
		return ClaimResult{OK: false, Reason: "terminal"}
	}
	if existing, ok := b.claims[eventID]; ok && existing.LeaseExpiry.After(time.Now()) {
		b.mu.Unlock()
		metrics.ClaimConflictsTotal.Inc()
		b.conflicts.record(true)
		return ClaimResult{OK: false, Reason: "already claimed"}
	}

	var requested time.Duration
	if leaseMS > 0 {
		requested = time.Duration(leaseMS) * time.Millisecond
	}
	lease := leaseDuration(event.RiskLevel, requested)
	now := time.Now()
	expiry := now.Add(lease)

	claim := &types.Claim{EventID: eventID, AgentID: agentID, LeaseExpiry: expiry, LastHeartbeat: now}
	b.claims[eventID] = claim

	event.Status = types.EventClaimed
	event.ClaimedBy = agentID
	event.UpdatedAt = now
	b.events[eventID] = event.Clone()
	snapshot := event.Clone()

	b.scheduleLeaseExpiryLocked(eventID, lease)
	b.mu.Unlock()

	b.conflicts.record(false)

	if b.store != nil {
		_ = b.store.PutEvent(snapshot)
	}

	_, _ = b.Publish(&types.Event{
		Topic:   types.TopicTaskClaimed,
		Payload: map[string]any{"event_id": eventID, "agent_id": agentID},
	})

	return ClaimResult{OK: true, LeaseExpiry: expiry}
}

// scheduleLeaseExpiryLocked must be called with b.mu held.
func (b *Bus) scheduleLeaseExpiryLocked(eventID string, lease time.Duration) {
	if old, ok := b.leaseTimers[eventID]; ok {
		old.Stop()
	}
	b.leaseTimers[eventID] = time.AfterFunc(lease, func() {
		b.expireLease(eventID)
	})
}

// expireLease fires when a lease's timer elapses. Renewal always wins if
// the lease had not yet been reset to OPEN by the time the timer fired
// (spec open question, resolved here in favor of the heartbeat).
func (b *Bus) expireLease(eventID string) {
	b.mu.Lock()
	claim, ok := b.claims[eventID]
	if !ok {
		b.mu.Unlock()
		return
	}
	if claim.LeaseExpiry.After(time.Now()) {
		// A heartbeat renewed the lease after this timer was scheduled but
		// before it fired; the renewal wins.
		b.mu.Unlock()
		return
	}

	event, ok := b.events[eventID]
	if !ok || event.Status.Terminal() {
		delete(b.claims, eventID)
		delete(b.leaseTimers, eventID)
		b.mu.Unlock()
		return
	}

	event.Status = types.EventOpen
	event.ClaimedBy = ""
	event.UpdatedAt = time.Now()
	b.events[eventID] = event.Clone()
	delete(b.claims, eventID)
	delete(b.leaseTimers, eventID)
	b.mu.Unlock()

	if b.store != nil {
		_ = b.store.PutEvent(event)
	}

	b.logger.Warn().Str("event_id", eventID).Msg("lease expired, event reset to OPEN")

	_, _ = b.Publish(&types.Event{
		Topic:   types.TopicTaskRetryScheduled,
		Payload: map[string]any{"event_id": eventID, "reason": "lease_expired"},
	})
}

// Heartbeat extends agentID's lease on eventID. Returns false if the lease
// already expired or is held by a different agent.
func (b *Bus) Heartbeat(eventID, agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	claim, ok := b.claims[eventID]
	if !ok || claim.AgentID != agentID {
		return false
	}
	if claim.LeaseExpiry.Before(time.Now()) {
		return false
	}

	event, ok := b.events[eventID]
	if !ok {
		return false
	}
	lease := leaseDuration(event.RiskLevel, 0)
	now := time.Now()
	claim.LastHeartbeat = now
	claim.LeaseExpiry = now.Add(lease)
	b.scheduleLeaseExpiryLocked(eventID, lease)
	return true
}

// Release cancels agentID's claim on eventID. If the event is still
// non-terminal it resets to OPEN.
func (b *Bus) Release(eventID, agentID string) {
	b.mu.Lock()
	claim, ok := b.claims[eventID]
	if !ok || claim.AgentID != agentID {
		b.mu.Unlock()
		return
	}
	if t, ok := b.leaseTimers[eventID]; ok {
		t.Stop()
		delete(b.leaseTimers, eventID)
	}
	delete(b.claims, eventID)

	event, ok := b.events[eventID]
	if ok && !event.Status.Terminal() {
		event.Status = types.EventOpen
		event.ClaimedBy = ""
		event.UpdatedAt = time.Now()
		b.events[eventID] = event.Clone()
	}
	snapshot := event
	b.mu.Unlock()

	if ok && b.store != nil {
		_ = b.store.PutEvent(snapshot)
	}
}

// conflictWindow tracks a rolling ratio of failed claim attempts over the
// trailing window duration.
type conflictWindow struct {
	mu     sync.Mutex
	window time.Duration
	events []conflictEvent
}

type conflictEvent struct {
	at     time.Time
	failed bool
}

func newConflictWindow(window time.Duration) *conflictWindow {
	return &conflictWindow{window: window}
}

func (c *conflictWindow) record(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.events = append(c.events, conflictEvent{at: now, failed: failed})
	c.prune(now)
}

func (c *conflictWindow) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.events) && c.events[i].at.Before(cutoff) {
		i++
	}
	c.events = c.events[i:]
}

// Rate returns failed/total over the trailing window; 0 if no attempts.
func (c *conflictWindow) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(time.Now())
	if len(c.events) == 0 {
		return 0
	}
	failed := 0
	for _, e := range c.events {
		if e.failed {
			failed++
		}
	}
	return float64(failed) / float64(len(c.events))
}
