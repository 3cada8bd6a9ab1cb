package bus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/corpcraft/swarmengine/pkg/errs"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL    = 5 * time.Minute
	defaultLease      = 30 * time.Second
	highRiskLease     = 120 * time.Second
	dlqLimitDefault   = 1000
	conflictWindowDur = time.Minute
)

// Handler processes a single event. A returned error or a panic moves the
// event to the dead-letter queue without interrupting other subscribers
// or halting the bus.
type Handler func(*types.Event) error

// Unsubscribe detaches a previously registered handler.
type Unsubscribe func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the single-writer append-only event blackboard: every state
// change is a published Event, and subscribers are dispatched
// synchronously within Publish so a mutation is always visible before
// its signal fires.
type Bus struct {
	mu     sync.RWMutex
	events map[string]*types.Event
	claims map[string]*types.Claim
	subs   map[types.Topic][]*subscription
	nextID uint64

	store storage.Store
	idem  *cache.Cache

	leaseTimers map[string]*time.Timer

	logger zerolog.Logger

	conflicts *conflictWindow

	closed bool
}

// New creates a Bus backed by store. Pass storage.NewMemStore() for the
// default in-process-only behavior.
func New(store storage.Store) *Bus {
	return &Bus{
		events:      make(map[string]*types.Event),
		claims:      make(map[string]*types.Claim),
		subs:        make(map[types.Topic][]*subscription),
		store:       store,
		idem:        cache.New(idempotencyTTL, idempotencyTTL),
		leaseTimers: make(map[string]*time.Timer),
		logger:      log.WithComponent("bus"),
		conflicts:   newConflictWindow(conflictWindowDur),
	}
}

// Shutdown cancels every pending lease timer. Safe to call once.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, t := range b.leaseTimers {
		t.Stop()
		delete(b.leaseTimers, id)
	}
}

// Subscribe registers handler for every topic in topics. Handlers for a
// given topic run in registration order; there is no ordering guarantee
// across topics.
func (b *Bus) Subscribe(topics []types.Topic, handler Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	for _, topic := range topics {
		b.subs[topic] = append(b.subs[topic], sub)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, topic := range topics {
			list := b.subs[topic]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[topic] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	}
}

// Publish stores event and invokes every subscriber of its topic,
// sequentially and to completion, before returning. If event.IdempotencyKey
// is set and was already seen within the last 5 minutes, the previously
// stored event is returned unchanged and no subscriber is invoked.
func (b *Bus) Publish(event *types.Event) (*types.Event, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, errs.ErrTerminal
	}

	now := time.Now()

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = types.EventOpen
	}

	if event.IdempotencyKey != "" {
		b.mu.Lock()
		if existingID, ok := b.idem.Get(event.IdempotencyKey); ok {
			b.mu.Unlock()
			return b.GetEvent(existingID.(string))
		}
		b.idem.Set(event.IdempotencyKey, event.EventID, idempotencyTTL)
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.events[event.EventID] = event.Clone()
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.PutEvent(event); err != nil {
			b.logger.Error().Err(err).Str("event_id", event.EventID).Msg("failed to persist event")
		}
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(event.Topic)).Inc()
	metrics.QueueDepth.Set(float64(b.countOpen()))

	b.dispatch(event)

	return b.GetEvent(event.EventID)
}

// dispatch invokes every subscriber of event.Topic, catching panics and
// errors and routing the event to the DLQ instead of propagating them.
func (b *Bus) dispatch(event *types.Event) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[event.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub *subscription, event *types.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberPanicsTotal.Inc()
			b.DeadLetter(event, fmt.Sprintf("subscriber panic: %v", r))
		}
	}()

	if err := sub.handler(event.Clone()); err != nil {
		b.DeadLetter(event, err.Error())
	}
}

func (b *Bus) countOpen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, e := range b.events {
		if !e.Status.Terminal() {
			n++
		}
	}
	return n
}

// Transition synchronously updates a non-terminal event's status in
// place, with no subscriber dispatch. The Decomposer uses this to mark a
// root event RESOLVING before it publishes any sub-task, so a
// concurrently running Matcher can never observe the root as still OPEN.
func (b *Bus) Transition(eventID string, status types.EventStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.events[eventID]
	if !ok {
		return errs.ErrNotFound
	}
	if e.Status.Terminal() {
		return errs.ErrTerminal
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	b.events[eventID] = e.Clone()

	if b.store != nil {
		_ = b.store.PutEvent(e)
	}
	return nil
}

// CloseEvent synchronously transitions eventID to a terminal status and
// records its cost delta. Used by the Executor immediately before it
// publishes the corresponding TASK_CLOSED/TASK_FAILED signal event.
func (b *Bus) CloseEvent(eventID string, status types.EventStatus, delta *types.CostDelta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.events[eventID]
	if !ok {
		return errs.ErrNotFound
	}
	if e.Status.Terminal() {
		return errs.ErrTerminal
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	e.CostDelta = delta

	if t, ok := b.leaseTimers[eventID]; ok {
		t.Stop()
		delete(b.leaseTimers, eventID)
	}
	delete(b.claims, eventID)

	b.events[eventID] = e.Clone()

	if b.store != nil {
		_ = b.store.PutEvent(e)
	}
	return nil
}

// GetEvent returns a snapshot of the event with id.
func (b *Bus) GetEvent(id string) (*types.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.events[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return e.Clone(), nil
}

// Filter selects events by conjunction of the non-nil/non-empty fields.
type Filter struct {
	Topic         *types.Topic
	Status        *types.EventStatus
	ParentEventID *string
	ClaimedBy     *string
	RetryOf       *string
}

func (f Filter) matches(e *types.Event) bool {
	if f.Topic != nil && e.Topic != *f.Topic {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.ParentEventID != nil && e.ParentEventID != *f.ParentEventID {
		return false
	}
	if f.ClaimedBy != nil && e.ClaimedBy != *f.ClaimedBy {
		return false
	}
	if f.RetryOf != nil {
		ro, _ := e.Payload["retry_of"].(string)
		if ro != *f.RetryOf {
			return false
		}
	}
	return true
}

// Query returns every stored event matching filter, oldest first.
func (b *Bus) Query(filter Filter) []*types.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*types.Event
	for _, e := range b.events {
		if filter.matches(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Replay streams every event created within [from, to) in created_at
// order. A zero to means "up to now".
func (b *Bus) Replay(from time.Time, to time.Time) <-chan *types.Event {
	b.mu.RLock()
	var all []*types.Event
	for _, e := range b.events {
		if e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !e.CreatedAt.Before(to) {
			continue
		}
		all = append(all, e.Clone())
	}
	b.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	ch := make(chan *types.Event, len(all))
	for _, e := range all {
		ch <- e
	}
	close(ch)
	return ch
}
