package policy

import (
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/notify"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const congestionThreshold = 10

// tierDurations is the reminder/first-timeout pair for each tier.
// CRITICAL additionally escalates before auto-rejecting; that second
// wait is escalateFollowup.
var tierDurations = map[types.ApprovalTier]struct {
	reminder          time.Duration
	timeout           time.Duration
	escalateFollowup  time.Duration
}{
	types.TierFast:     {3 * time.Minute, 5 * time.Minute, 0},
	types.TierStandard: {10 * time.Minute, 15 * time.Minute, 0},
	types.TierCritical: {20 * time.Minute, 30 * time.Minute, 30 * time.Minute},
}

// TierForRisk maps a task risk level to its approval policy tier.
func TierForRisk(risk types.RiskLevel) types.ApprovalTier {
	switch risk {
	case types.RiskHigh:
		return types.TierCritical
	case types.RiskMedium:
		return types.TierStandard
	default:
		return types.TierFast
	}
}

// TierForUrgency maps a Summoner urgency to its approval policy tier.
func TierForUrgency(u types.Urgency) types.ApprovalTier {
	switch u {
	case types.UrgencyCritical, types.UrgencyHigh:
		return types.TierCritical
	case types.UrgencyMedium:
		return types.TierStandard
	default:
		return types.TierFast
	}
}

type tracked struct {
	record        types.ApprovalRecord
	eventID       string
	reminderTimer *time.Timer
	timeoutTimer  *time.Timer
	escalateTimer *time.Timer
}

// ApprovalEngine gates risky actions behind a human decision, with a
// tiered SLA: a reminder, then a timeout action that differs by tier.
type ApprovalEngine struct {
	bus      *bus.Bus
	notifier notify.Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	records map[string]*tracked
}

// NewApprovalEngine creates an ApprovalEngine subscribed to
// APPROVAL_REQUIRED. notifier may be nil, in which case alarms are
// dropped silently.
func NewApprovalEngine(b *bus.Bus, notifier notify.Notifier) *ApprovalEngine {
	e := &ApprovalEngine{
		bus:      b,
		notifier: notifier,
		logger:   log.WithComponent("approval"),
		records:  make(map[string]*tracked),
	}
	b.Subscribe([]types.Topic{types.TopicApprovalRequired}, e.handleRequired)
	return e
}

func (e *ApprovalEngine) handleRequired(event *types.Event) error {
	eventID, _ := event.Payload["event_id"].(string)
	requestID, _ := event.Payload["request_id"].(string)
	key := eventID
	if key == "" {
		key = requestID
	}
	if key == "" {
		return nil
	}

	var tier types.ApprovalTier
	if riskStr, ok := event.Payload["risk_level"].(string); ok && riskStr != "" {
		tier = TierForRisk(types.RiskLevel(riskStr))
	} else if urgencyStr, ok := event.Payload["urgency"].(string); ok && urgencyStr != "" {
		tier = TierForUrgency(types.Urgency(urgencyStr))
	} else {
		tier = types.TierStandard
	}

	record := types.ApprovalRecord{
		ApprovalID: uuid.New().String(),
		EventID:    key,
		Tier:       tier,
		Status:     types.ApprovalPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	t := &tracked{record: record, eventID: key}
	durations := tierDurations[tier]

	t.reminderTimer = time.AfterFunc(durations.reminder, func() {
		e.onReminder(record.ApprovalID)
	})
	t.timeoutTimer = time.AfterFunc(durations.timeout, func() {
		e.onTimeout(record.ApprovalID)
	})

	e.mu.Lock()
	e.records[record.ApprovalID] = t
	pending := e.countPendingLocked()
	e.mu.Unlock()

	metrics.ApprovalsPending.Set(float64(pending))
	if pending > congestionThreshold && e.notifier != nil {
		_ = e.notifier.Alert("approval queue congested", "more than 10 approvals are pending")
	}

	e.logger.Info().Str("approval_id", record.ApprovalID).Str("tier", string(tier)).Msg("approval required")
	return nil
}

func (e *ApprovalEngine) countPendingLocked() int {
	n := 0
	for _, t := range e.records {
		if t.record.Status == types.ApprovalPending || t.record.Status == types.ApprovalReminded {
			n++
		}
	}
	return n
}

func (e *ApprovalEngine) onReminder(approvalID string) {
	e.mu.Lock()
	t, ok := e.records[approvalID]
	if ok {
		t.record.Status = types.ApprovalReminded
		now := time.Now()
		t.record.RemindedAt = &now
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	_, _ = e.bus.Publish(&types.Event{
		Topic: types.TopicSOSError,
		Payload: map[string]any{
			"kind":        "APPROVAL_REMINDER",
			"approval_id": approvalID,
			"event_id":    t.eventID,
		},
	})
}

func (e *ApprovalEngine) onTimeout(approvalID string) {
	e.mu.Lock()
	t, ok := e.records[approvalID]
	if !ok || t.record.Status == types.ApprovalApproved || t.record.Status == types.ApprovalRejected {
		e.mu.Unlock()
		return
	}
	tier := t.record.Tier
	e.mu.Unlock()

	switch tier {
	case types.TierCritical:
		e.escalate(approvalID)
	default:
		e.downgrade(approvalID)
	}
}

func (e *ApprovalEngine) downgrade(approvalID string) {
	e.finalize(approvalID, types.ApprovalTimeoutDowngraded, "SLA_MONITOR", "timeout: downgraded to draft")
	metrics.ApprovalTimeoutActionsTotal.WithLabelValues("DOWNGRADE_TO_DRAFT").Inc()

	e.mu.Lock()
	t, ok := e.records[approvalID]
	e.mu.Unlock()
	if !ok {
		return
	}

	_, _ = e.bus.Publish(&types.Event{
		Topic: types.TopicApprovalDecision,
		Payload: map[string]any{
			"approval_id": approvalID,
			"event_id":    t.eventID,
			"decision":    "APPROVE",
			"decided_by":  "SLA_MONITOR",
			"downgrade_spec": map[string]bool{
				"strip_external_send": true,
				"strip_shell_exec":    true,
			},
		},
	})
}

func (e *ApprovalEngine) escalate(approvalID string) {
	e.mu.Lock()
	_, ok := e.records[approvalID]
	e.mu.Unlock()
	if !ok {
		return
	}

	metrics.ApprovalTimeoutActionsTotal.WithLabelValues("ESCALATE").Inc()
	if e.notifier != nil {
		_ = e.notifier.Alert("critical approval escalated", "approval "+approvalID+" has exceeded its review window")
	}

	followup := tierDurations[types.TierCritical].escalateFollowup
	timer := time.AfterFunc(followup, func() {
		e.autoReject(approvalID)
	})

	e.mu.Lock()
	if t, ok := e.records[approvalID]; ok {
		t.escalateTimer = timer
	} else {
		timer.Stop()
	}
	e.mu.Unlock()
}

func (e *ApprovalEngine) autoReject(approvalID string) {
	e.mu.Lock()
	t, ok := e.records[approvalID]
	if ok && (t.record.Status == types.ApprovalApproved || t.record.Status == types.ApprovalRejected) {
		ok = false
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	e.finalize(approvalID, types.ApprovalTimeoutRejected, "SLA_MONITOR", "timeout: auto-rejected after escalation")
	metrics.ApprovalTimeoutActionsTotal.WithLabelValues("AUTO_REJECT").Inc()

	e.mu.Lock()
	tr, ok := e.records[approvalID]
	e.mu.Unlock()
	if !ok {
		return
	}

	_, _ = e.bus.Publish(&types.Event{
		Topic: types.TopicApprovalDecision,
		Payload: map[string]any{
			"approval_id": approvalID,
			"event_id":    tr.eventID,
			"decision":    "REJECT",
			"decided_by":  "SLA_MONITOR",
			"reason":      "critical approval window exceeded",
		},
	})
}

// Decide resolves a pending approval with a human decision, stopping its
// timers and publishing APPROVAL_DECISION.
func (e *ApprovalEngine) Decide(approvalID, decision, reason, decidedBy string) bool {
	status := types.ApprovalApproved
	if decision == "REJECT" {
		status = types.ApprovalRejected
	}

	t, ok := e.finalizeAndGet(approvalID, status, decidedBy, reason)
	if !ok {
		return false
	}

	_, _ = e.bus.Publish(&types.Event{
		Topic: types.TopicApprovalDecision,
		Payload: map[string]any{
			"approval_id": approvalID,
			"event_id":    t.eventID,
			"decision":    decision,
			"decided_by":  decidedBy,
			"reason":      reason,
		},
	})
	return true
}

func (e *ApprovalEngine) finalize(approvalID string, status types.ApprovalStatus, decidedBy, reason string) {
	e.finalizeAndGet(approvalID, status, decidedBy, reason)
}

func (e *ApprovalEngine) finalizeAndGet(approvalID string, status types.ApprovalStatus, decidedBy, reason string) (*tracked, bool) {
	e.mu.Lock()
	t, ok := e.records[approvalID]
	if !ok {
		e.mu.Unlock()
		return nil, false
	}
	if t.reminderTimer != nil {
		t.reminderTimer.Stop()
	}
	if t.timeoutTimer != nil {
		t.timeoutTimer.Stop()
	}
	if t.escalateTimer != nil {
		t.escalateTimer.Stop()
	}
	now := time.Now()
	t.record.Status = status
	t.record.UpdatedAt = now
	t.record.DecidedAt = &now
	t.record.DecidedBy = decidedBy
	t.record.DecisionReason = reason
	pending := e.countPendingLocked()
	e.mu.Unlock()

	metrics.ApprovalsPending.Set(float64(pending))
	metrics.ApprovalWaitSeconds.Observe(t.record.UpdatedAt.Sub(t.record.CreatedAt).Seconds())

	return t, true
}

// Record returns a copy of a tracked approval record, if known.
func (e *ApprovalEngine) Record(approvalID string) (types.ApprovalRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.records[approvalID]
	if !ok {
		return types.ApprovalRecord{}, false
	}
	return t.record, true
}

// Shutdown cancels every pending reminder, timeout, and escalation timer.
func (e *ApprovalEngine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.records {
		if t.reminderTimer != nil {
			t.reminderTimer.Stop()
		}
		if t.timeoutTimer != nil {
			t.timeoutTimer.Stop()
		}
		if t.escalateTimer != nil {
			t.escalateTimer.Stop()
		}
	}
}
