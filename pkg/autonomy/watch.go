package autonomy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// WatchRule reacts to events on Topics matching Filter (a conjunction of
// exact payload field equalities) by posting a new task. IntentTemplate
// may reference payload fields with "{{field}}" placeholders. Cooldown
// and MaxConcurrent bound how often and how many times the rule can be
// active at once.
type WatchRule struct {
	Name           string
	Topics         []types.Topic
	Filter         map[string]string
	IntentTemplate string
	RequiredTags   []string
	Cooldown       int64 // seconds; 0 disables cooldown
	MaxConcurrent  int   // 0 means unbounded
}

type ruleState struct {
	rule          WatchRule
	lastFiredUnix int64
	fired         bool
	active        map[string]bool // spawned task event id -> present
}

// WatchReactor subscribes to the topics named by its registered rules and
// fires a TASK_POSTED whenever an incoming event satisfies a rule's
// filter, cooldown, and concurrency budget.
type WatchReactor struct {
	bus    *bus.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	rules []*ruleState
	nowFn func() int64
}

// NewWatchReactor creates a reactor with no rules registered yet.
func NewWatchReactor(b *bus.Bus, nowFn func() int64) *WatchReactor {
	return &WatchReactor{bus: b, logger: log.WithComponent("watch"), nowFn: nowFn}
}

// AddRule registers rule and subscribes to its topics.
func (w *WatchReactor) AddRule(rule WatchRule) {
	state := &ruleState{rule: rule, active: make(map[string]bool)}
	w.mu.Lock()
	w.rules = append(w.rules, state)
	w.mu.Unlock()

	w.bus.Subscribe(rule.Topics, func(e *types.Event) error {
		w.evaluate(state, e)
		return nil
	})
}

func (w *WatchReactor) evaluate(state *ruleState, e *types.Event) {
	if !matchesFilter(e.Payload, state.rule.Filter) {
		return
	}

	w.mu.Lock()
	now := w.nowFn()
	if state.rule.Cooldown > 0 && state.fired && now-state.lastFiredUnix < state.rule.Cooldown {
		w.mu.Unlock()
		return
	}
	if state.rule.MaxConcurrent > 0 && len(state.active) >= state.rule.MaxConcurrent {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	intent := expandTemplate(state.rule.IntentTemplate, e.Payload)
	spawned, err := w.bus.Publish(&types.Event{
		Topic:        types.TopicTaskPosted,
		Intent:       intent,
		RequiredTags: state.rule.RequiredTags,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("rule", state.rule.Name).Msg("watch rule failed to publish")
		return
	}

	w.mu.Lock()
	state.lastFiredUnix = now
	state.fired = true
	state.active[spawned.EventID] = true
	w.mu.Unlock()

	w.watchForTerminal(state, spawned.EventID)
	w.logger.Info().Str("rule", state.rule.Name).Str("event_id", spawned.EventID).Msg("watch rule fired")
}

func (w *WatchReactor) watchForTerminal(state *ruleState, eventID string) {
	var unsub bus.Unsubscribe
	unsub = w.bus.Subscribe([]types.Topic{types.TopicTaskClosed, types.TopicTaskFailed}, func(e *types.Event) error {
		id, _ := e.Payload["event_id"].(string)
		if id != eventID {
			return nil
		}
		w.mu.Lock()
		delete(state.active, eventID)
		w.mu.Unlock()
		unsub()
		return nil
	})
}

func matchesFilter(payload map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func expandTemplate(template string, payload map[string]any) string {
	out := template
	for k, v := range payload {
		placeholder := "{{" + k + "}}"
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", v))
	}
	return out
}
