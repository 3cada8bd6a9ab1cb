package swarm

import (
	"sort"
	"sync"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/errs"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// MatchTier names which of the three matching passes produced a claim.
type MatchTier string

const (
	TierExact   MatchTier = "exact"
	TierPartial MatchTier = "partial"
	TierAnyIdle MatchTier = "any_idle"
)

// Matcher owns the agent roster and claims TASK_POSTED events on the
// roster's behalf: an AND-tag match first, then the best partial-overlap
// agent, then any idle agent at all.
type Matcher struct {
	bus    *bus.Bus
	logger zerolog.Logger

	mu     sync.RWMutex
	agents map[string]*types.Agent
}

// NewMatcher creates a Matcher subscribed to TASK_POSTED and the terminal
// task topics that free an agent back to IDLE.
func NewMatcher(b *bus.Bus) *Matcher {
	m := &Matcher{
		bus:    b,
		logger: log.WithComponent("matcher"),
		agents: make(map[string]*types.Agent),
	}
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, m.handlePosted)
	b.Subscribe([]types.Topic{types.TopicTaskClosed, types.TopicTaskFailed}, m.handleTerminal)
	return m
}

// RegisterAgent adds or replaces an agent in the roster.
func (m *Matcher) RegisterAgent(a *types.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == "" {
		a.Status = types.AgentIdle
	}
	m.agents[a.AgentID] = a
}

// Agent returns a copy of the roster entry for id, if present.
func (m *Matcher) Agent(id string) (types.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return *a, true
}

// ListAgents returns a snapshot of the full roster.
func (m *Matcher) ListAgents() []types.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, *a)
	}
	return out
}

func (m *Matcher) handlePosted(event *types.Event) error {
	// A root task that was just decomposed moves to RESOLVING before its
	// children post; re-check live status rather than trust this stale
	// dispatch-time snapshot.
	current, err := m.bus.GetEvent(event.EventID)
	if err != nil {
		return nil
	}
	if current.Status != types.EventOpen {
		return nil
	}

	agent, tier, ok := m.pick(current.RequiredTags)
	if !ok {
		return nil
	}

	result := m.bus.Claim(current.EventID, agent.AgentID, 0)
	if !result.OK {
		return nil
	}

	m.mu.Lock()
	if a, ok := m.agents[agent.AgentID]; ok {
		a.Status = types.AgentClaimed
		a.CurrentEventID = current.EventID
	}
	m.mu.Unlock()

	metrics.TasksMatchedTotal.WithLabelValues(string(tier)).Inc()
	m.logger.Info().Str("event_id", current.EventID).Str("agent_id", agent.AgentID).Str("tier", string(tier)).Msg("matched task")
	return nil
}

// pick runs the three-tier match over the live roster. Ties within a tier
// are broken by descending 7-day success rate.
func (m *Matcher) pick(tags []string) (types.Agent, MatchTier, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var idle []*types.Agent
	for _, a := range m.agents {
		if a.Status == types.AgentIdle {
			idle = append(idle, a)
		}
	}
	if len(idle) == 0 {
		return types.Agent{}, "", false
	}

	var exact []*types.Agent
	for _, a := range idle {
		if a.HasAllTags(tags) {
			exact = append(exact, a)
		}
	}
	if len(exact) > 0 {
		sort.Slice(exact, func(i, j int) bool {
			return exact[i].Metrics.SuccessRate7d > exact[j].Metrics.SuccessRate7d
		})
		return *exact[0], TierExact, true
	}

	type scored struct {
		a       *types.Agent
		overlap int
	}
	var partial []scored
	for _, a := range idle {
		if n := a.OverlapCount(tags); n > 0 {
			partial = append(partial, scored{a, n})
		}
	}
	if len(partial) > 0 {
		sort.Slice(partial, func(i, j int) bool {
			if partial[i].overlap != partial[j].overlap {
				return partial[i].overlap > partial[j].overlap
			}
			return partial[i].a.Metrics.SuccessRate7d > partial[j].a.Metrics.SuccessRate7d
		})
		return *partial[0].a, TierPartial, true
	}

	sort.Slice(idle, func(i, j int) bool {
		return idle[i].Metrics.SuccessRate7d > idle[j].Metrics.SuccessRate7d
	})
	return *idle[0], TierAnyIdle, true
}

// IncrementConcurrent bumps an agent's in-flight task count, used by the
// Summoner's overload detection.
func (m *Matcher) IncrementConcurrent(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[agentID]; ok {
		a.ConcurrentTasks++
	}
}

// handleTerminal frees an agent back to IDLE and lowers its in-flight
// count when one of its tasks reaches a terminal state. This is the sole
// place ConcurrentTasks is decremented; Summoner only increments it on
// claim, since Matcher owns the roster.
func (m *Matcher) handleTerminal(event *types.Event) error {
	eventID, _ := event.Payload["event_id"].(string)
	if eventID == "" {
		return nil
	}

	claimed, err := m.bus.GetEvent(eventID)
	if err != nil && err != errs.ErrNotFound {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.CurrentEventID == eventID || (claimed != nil && a.AgentID == claimed.ClaimedBy) {
			a.Status = types.AgentIdle
			a.CurrentEventID = ""
			if a.ConcurrentTasks > 0 {
				a.ConcurrentTasks--
			}
		}
	}
	return nil
}
