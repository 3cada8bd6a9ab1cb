package swarm

import (
	"sync"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

const (
	hudAPGain    = 2.0
	hudAPPenalty = 5.0
)

// BudgetTracker maintains the three-resource HUD scoreboard (HP/MP/AP) off
// of cost deltas and task outcomes, and republishes it as HUD_SYNC after
// every change.
type BudgetTracker struct {
	bus    *bus.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	state types.HUDState
}

// NewBudgetTracker creates a BudgetTracker seeded with initial and
// subscribed to the cost-bearing and terminal task topics.
func NewBudgetTracker(b *bus.Bus, initial types.HUDState) *BudgetTracker {
	t := &BudgetTracker{bus: b, logger: log.WithComponent("budget"), state: initial}
	b.Subscribe([]types.Topic{types.TopicTaskClosed}, t.handleClosed)
	b.Subscribe([]types.Topic{types.TopicTaskFailed}, t.handleFailed)
	return t
}

// State returns a copy of the current HUD state.
func (t *BudgetTracker) State() types.HUDState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func (t *BudgetTracker) applyCost(tokensUsed int64, cashUsed float64) {
	t.mu.Lock()
	t.state.MP.Current = floorZero(t.state.MP.Current - float64(tokensUsed))
	t.state.HP.Current = floorZero(t.state.HP.Current - cashUsed*100)
	t.mu.Unlock()
}

func (t *BudgetTracker) handleClosed(event *types.Event) error {
	tokens := payloadInt64(event.Payload, "tokens_used")
	cash := payloadFloat(event.Payload, "cash_used")
	t.applyCost(tokens, cash)

	t.mu.Lock()
	t.state.AP.Current += hudAPGain
	if t.state.AP.Max > 0 && t.state.AP.Current > t.state.AP.Max {
		t.state.AP.Current = t.state.AP.Max
	}
	t.mu.Unlock()

	t.sync()
	return nil
}

func (t *BudgetTracker) handleFailed(event *types.Event) error {
	tokens := payloadInt64(event.Payload, "tokens_used")
	cash := payloadFloat(event.Payload, "cash_used")
	t.applyCost(tokens, cash)

	t.mu.Lock()
	t.state.AP.Current = floorZero(t.state.AP.Current - hudAPPenalty)
	t.mu.Unlock()

	t.sync()
	return nil
}

func (t *BudgetTracker) sync() {
	state := t.State()
	_, _ = t.bus.Publish(&types.Event{
		Topic: types.TopicHUDSync,
		Payload: map[string]any{
			"hp": map[string]float64{"current": state.HP.Current, "max": state.HP.Max},
			"mp": map[string]float64{"current": state.MP.Current, "max": state.MP.Max},
			"ap": map[string]float64{"current": state.AP.Current, "max": state.AP.Max},
		},
	})
}

func payloadInt64(p map[string]any, key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
