package swarm

import (
	"math/rand"
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

const maxRetries = 2

// retryableCategory reports whether a failure taxonomy bucket is eligible
// for automatic retry. Only TRANSIENT failures are.
func retryableCategory(category string) bool {
	return category == "TRANSIENT"
}

// backoffDelay implements exponential backoff with +/-20% jitter, capped
// at 60s: min(60000, 1000*2^n*(1+/-0.2)) milliseconds.
func backoffDelay(attempt int) time.Duration {
	base := 1000.0 * float64(int64(1)<<uint(attempt))
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	ms := base * jitter
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}

// Recovery retries TRANSIENT failures up to maxRetries per root task, with
// exponential backoff, and routes exhausted or non-retryable failures to
// the dead-letter queue.
type Recovery struct {
	bus    *bus.Bus
	logger zerolog.Logger

	mu      sync.Mutex
	retries map[string]int
	timers  map[*time.Timer]struct{}
	closed  bool
}

// NewRecovery creates a Recovery subscribed to SOS_ERROR, TASK_FAILED and
// TASK_RETRY_SCHEDULED.
func NewRecovery(b *bus.Bus) *Recovery {
	r := &Recovery{
		bus:     b,
		logger:  log.WithComponent("recovery"),
		retries: make(map[string]int),
		timers:  make(map[*time.Timer]struct{}),
	}
	b.Subscribe([]types.Topic{types.TopicTaskFailed}, r.handleFailed)
	b.Subscribe([]types.Topic{types.TopicTaskRetryScheduled}, r.handleLeaseExpiry)
	b.Subscribe([]types.Topic{types.TopicSOSError}, r.handleSOS)
	return r
}

// Shutdown cancels every pending retry timer so none of them fire and
// publish after the engine has stopped.
func (r *Recovery) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for t := range r.timers {
		t.Stop()
	}
	r.timers = make(map[*time.Timer]struct{})
}

func rootOf(event *types.Event) string {
	if ro, ok := event.Payload["retry_of"].(string); ok && ro != "" {
		return ro
	}
	return event.EventID
}

func (r *Recovery) attemptFor(root string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries[root]
}

func (r *Recovery) incrementFor(root string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[root]++
	return r.retries[root]
}

func (r *Recovery) handleFailed(signal *types.Event) error {
	eventID, _ := signal.Payload["event_id"].(string)
	if eventID == "" {
		return nil
	}
	if decomposed, _ := signal.Payload["decomposed"].(bool); decomposed {
		return nil
	}

	category, _ := signal.Payload["category"].(string)
	reason, _ := signal.Payload["reason"].(string)
	if category == "" {
		category = classifyFailure(reason)
	}

	task, err := r.bus.GetEvent(eventID)
	if err != nil {
		return nil
	}

	root := rootOf(task)

	if !retryableCategory(category) {
		r.logger.Info().Str("event_id", eventID).Str("category", category).Msg("non-retryable failure, routing to DLQ")
		r.bus.DeadLetter(task, "non-retryable: "+category)
		return nil
	}

	attempt := r.attemptFor(root)
	if attempt >= maxRetries {
		r.logger.Warn().Str("event_id", eventID).Int("attempts", attempt).Msg("retries exhausted, routing to DLQ")
		r.bus.DeadLetter(task, "retries exhausted")
		return nil
	}

	nextAttempt := r.incrementFor(root)
	delay := backoffDelay(attempt)
	metrics.TaskRetriesTotal.Inc()

	r.logger.Info().Str("event_id", eventID).Int("attempt", nextAttempt).Dur("delay", delay).Msg("scheduling retry")

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, timer)
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}
		_, err := r.bus.Publish(&types.Event{
			Topic:         types.TopicTaskPosted,
			Intent:        task.Intent,
			ParentEventID: task.ParentEventID,
			RequiredTags:  task.RequiredTags,
			RiskLevel:     task.RiskLevel,
			Budget:        task.Budget,
			Payload:       map[string]any{"retry_of": root},
		})
		if err != nil {
			r.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to publish retry")
		}
	})
	r.mu.Lock()
	if r.closed {
		timer.Stop()
	} else {
		r.timers[timer] = struct{}{}
	}
	r.mu.Unlock()

	return nil
}

// handleLeaseExpiry treats a lease-expiry reset as a retry attempt against
// the same event id so a task that keeps timing out without anyone
// completing it cannot loop forever. The bus has already reset the event
// to OPEN by the time this fires.
func (r *Recovery) handleLeaseExpiry(signal *types.Event) error {
	eventID, _ := signal.Payload["event_id"].(string)
	if eventID == "" {
		return nil
	}

	task, err := r.bus.GetEvent(eventID)
	if err != nil || task.Status.Terminal() {
		return nil
	}

	root := rootOf(task)
	attempt := r.incrementFor(root)
	if attempt <= maxRetries {
		return nil
	}

	r.logger.Warn().Str("event_id", eventID).Int("attempts", attempt).Msg("lease kept expiring, routing to DLQ")
	r.bus.DeadLetter(task, "lease expired repeatedly")
	return nil
}

func (r *Recovery) handleSOS(signal *types.Event) error {
	eventID, _ := signal.Payload["event_id"].(string)
	if eventID == "" {
		return nil
	}
	kind, _ := signal.Payload["kind"].(string)
	if kind != "EXECUTION_ERROR" {
		return nil
	}
	return r.handleFailed(signal)
}
