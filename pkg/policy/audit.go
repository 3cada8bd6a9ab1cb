package policy

import (
	"sort"
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// ApprovalStats summarizes the approval queue's pending count and wait
// latency percentiles, computed from paired APPROVAL_REQUIRED/
// APPROVAL_DECISION log entries.
type ApprovalStats struct {
	Pending int
	P50MS   int64
	P95MS   int64
}

// AuditLog is an append-only record of every event published on the bus.
// It never mutates or drops an entry.
type AuditLog struct {
	logger zerolog.Logger

	mu  sync.RWMutex
	log []*types.Event
}

// NewAuditLog creates an AuditLog subscribed to every topic.
func NewAuditLog(b *bus.Bus) *AuditLog {
	a := &AuditLog{logger: log.WithComponent("audit")}
	b.Subscribe(types.AllTopics, a.record)
	return a
}

func (a *AuditLog) record(event *types.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = append(a.log, event)
	return nil
}

func payloadEventID(e *types.Event) string {
	id, _ := e.Payload["event_id"].(string)
	return id
}

// GetLog returns every recorded entry, or only those relating to taskID
// when non-empty (its own EventID, its ParentEventID, or a
// payload.event_id reference to it).
func (a *AuditLog) GetLog(taskID string) []*types.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if taskID == "" {
		out := make([]*types.Event, len(a.log))
		copy(out, a.log)
		return out
	}

	var out []*types.Event
	for _, e := range a.log {
		if e.EventID == taskID || e.ParentEventID == taskID || payloadEventID(e) == taskID {
			out = append(out, e)
		}
	}
	return out
}

// Replay returns the chronologically ordered event subtree rooted at
// taskID, discovered by breadth-first traversal over ParentEventID (and
// over payload.event_id references, for synthetic signal events that
// describe a node in the tree without being its child).
func (a *AuditLog) Replay(taskID string) []*types.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()

	visited := map[string]bool{taskID: true}
	queue := []string{taskID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range a.log {
			if e.ParentEventID == id && !visited[e.EventID] {
				visited[e.EventID] = true
				queue = append(queue, e.EventID)
			}
		}
	}

	var out []*types.Event
	for _, e := range a.log {
		if visited[e.EventID] || visited[e.ParentEventID] || visited[payloadEventID(e)] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetByFailureCategory returns every TASK_FAILED entry whose
// payload.category matches cat.
func (a *AuditLog) GetByFailureCategory(cat string) []*types.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*types.Event
	for _, e := range a.log {
		if e.Topic != types.TopicTaskFailed {
			continue
		}
		if category, _ := e.Payload["category"].(string); category == cat {
			out = append(out, e)
		}
	}
	return out
}

// GetApprovalStats pairs APPROVAL_REQUIRED and APPROVAL_DECISION entries
// by their shared event_id (or request_id, for Summoner-originated
// requests) and reports pending count plus p50/p95 wait latency.
func (a *AuditLog) GetApprovalStats() ApprovalStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	requested := make(map[string]time.Time)
	var waits []int64
	decided := make(map[string]bool)

	keyOf := func(e *types.Event) string {
		if id := payloadEventID(e); id != "" {
			return id
		}
		id, _ := e.Payload["request_id"].(string)
		return id
	}

	for _, e := range a.log {
		key := keyOf(e)
		if key == "" {
			continue
		}
		switch e.Topic {
		case types.TopicApprovalRequired:
			requested[key] = e.CreatedAt
		case types.TopicApprovalDecision:
			decided[key] = true
			if start, ok := requested[key]; ok {
				waits = append(waits, e.CreatedAt.Sub(start).Milliseconds())
			}
		}
	}

	pending := 0
	for id := range requested {
		if !decided[id] {
			pending++
		}
	}

	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	return ApprovalStats{
		Pending: pending,
		P50MS:   percentile(waits, 0.50),
		P95MS:   percentile(waits, 0.95),
	}
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
