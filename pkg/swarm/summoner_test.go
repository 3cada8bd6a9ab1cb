package swarm

import (
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummonerAutoApprovesAtLevelThree(t *testing.T) {
	SetAutonomyLevel(3)
	SetExecutionMode(ModeTeam)
	defer SetAutonomyLevel(0)
	defer SetExecutionMode(ModeMock)

	bb := newTestBus()
	defer bb.Shutdown()
	matcher := NewMatcher(bb)
	tracker := NewBudgetTracker(bb, types.HUDState{
		HP: types.Resource{Current: 100, Max: 100},
		MP: types.Resource{Current: 1000, Max: 1000},
		AP: types.Resource{Current: 0, Max: 10},
	})
	NewSummoner(bb, matcher, tracker, nil)
	matcher.RegisterAgent(newAgent("idle-1", 0.9, "design"))

	var resolved []*types.Event
	bb.Subscribe([]types.Topic{types.TopicAgentSummonResolved}, func(e *types.Event) error {
		resolved = append(resolved, e)
		return nil
	})

	_, err := bb.Publish(&types.Event{Topic: types.TopicTaskAnalyzed, Payload: map[string]any{
		"complexity":       string(ComplexityComplex),
		"suggested_agents": []string{"design"},
	}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(resolved) > 0 }, time.Second, 10*time.Millisecond)
}

func TestSummonerDeclinesOnExhaustedBudget(t *testing.T) {
	bb := newTestBus()
	defer bb.Shutdown()
	matcher := NewMatcher(bb)
	tracker := NewBudgetTracker(bb, types.HUDState{
		HP: types.Resource{Current: 1, Max: 100},
		MP: types.Resource{Current: 1, Max: 1000},
		AP: types.Resource{Current: 0, Max: 10},
	})
	s := NewSummoner(bb, matcher, tracker, nil)

	var requests int
	bb.Subscribe([]types.Topic{types.TopicAgentSummonRequest}, func(e *types.Event) error {
		requests++
		return nil
	})

	s.raise(types.SummonExplicit, []string{"code"}, types.UrgencyLow, "", "")
	assert.Equal(t, 0, requests)
}
