package bus

import (
	"time"

	"github.com/corpcraft/swarmengine/pkg/errs"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/types"
)

// DeadLetter records event as failed with reason. Safe to call from
// within a subscriber's own handler or from dispatch's panic recovery.
func (b *Bus) DeadLetter(event *types.Event, reason string) {
	metrics.DeadLetterTotal.Inc()

	b.mu.Lock()
	if e, ok := b.events[event.EventID]; ok && !e.Status.Terminal() {
		e.Status = types.EventFailed
		e.UpdatedAt = time.Now()
		b.events[event.EventID] = e.Clone()
	}
	b.mu.Unlock()

	entry := &types.DeadLetterEntry{Event: event.Clone(), Reason: reason, RecordedAt: time.Now()}
	if b.store != nil {
		_ = b.store.PutDeadLetter(entry)
	}

	logger := log.WithTopic(log.WithEventID(b.logger, event.EventID), string(event.Topic))
	logger.Error().Str("reason", reason).Msg("event dead-lettered")
}

// GetDLQ returns up to limit dead-letter entries, most recent first. A
// limit of 0 uses the default cap of 1000.
func (b *Bus) GetDLQ(limit int) []*types.DeadLetterEntry {
	if limit <= 0 {
		limit = dlqLimitDefault
	}
	if b.store == nil {
		return nil
	}
	entries, err := b.store.ListDeadLetters()
	if err != nil {
		return nil
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*types.DeadLetterEntry, len(entries))
	for i := range entries {
		out[len(entries)-1-i] = entries[i]
	}
	return out
}

// RetryFromDLQ republishes eventID as OPEN, re-entering the pipeline at
// its original topic.
func (b *Bus) RetryFromDLQ(eventID string) (*types.Event, error) {
	entries := b.GetDLQ(0)
	for _, entry := range entries {
		if entry.Event.EventID != eventID {
			continue
		}
		revived := entry.Event.Clone()
		revived.Status = types.EventOpen
		revived.ClaimedBy = ""
		revived.IdempotencyKey = ""

		b.mu.Lock()
		b.events[revived.EventID] = revived.Clone()
		b.mu.Unlock()

		if b.store != nil {
			_ = b.store.PutEvent(revived)
		}

		b.dispatch(revived)
		return revived, nil
	}
	return nil, errs.ErrNotFound
}
