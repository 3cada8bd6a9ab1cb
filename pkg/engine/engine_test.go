package engine

import (
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/swarm"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return New(Config{
		Store: storage.NewMemStore(),
		InitialHUD: types.HUDState{
			HP: types.Resource{Current: 100, Max: 100},
			MP: types.Resource{Current: 1000, Max: 1000},
			AP: types.Resource{Current: 0, Max: 10},
		},
	})
}

func TestEnginePostIntentRunsToClosure(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown()
	e.SetExecutionMode(swarm.ModeMock)

	e.RegisterAgent(&types.Agent{
		AgentID:  "agent-1",
		Name:     "Worker",
		RoleTags: map[string]struct{}{"code": {}},
		Status:   types.AgentIdle,
	})

	task, err := e.PostIntent("implement the new login flow", swarm.RouteOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := e.Bus.GetEvent(task.EventID)
		return err == nil && got.Status == types.EventClosed
	}, time.Second, 10*time.Millisecond)
}

func TestEngineDecomposerRunsBeforeMatcherClaims(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown()
	e.SetExecutionMode(swarm.ModeTeam)

	e.RegisterAgent(&types.Agent{
		AgentID:  "agent-code",
		Name:     "Coder",
		RoleTags: map[string]struct{}{"code": {}},
		Status:   types.AgentIdle,
	})
	e.RegisterAgent(&types.Agent{
		AgentID:  "agent-report",
		Name:     "Reporter",
		RoleTags: map[string]struct{}{"report": {}},
		Status:   types.AgentIdle,
	})

	task, err := e.PostIntent("write the code then a report summarizing it", swarm.RouteOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		parentID := task.EventID
		posted := types.TopicTaskPosted
		events := e.GetEvents(bus.Filter{Topic: &posted, ParentEventID: &parentID})
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)

	root, err := e.Bus.GetEvent(task.EventID)
	require.NoError(t, err)
	assert.Empty(t, root.ClaimedBy)
}

func TestEngineInstallSkillAllowsOfficial(t *testing.T) {
	e := newTestEngine()
	defer e.Shutdown()

	manifest := []byte("---\nname: helper\nversion: \"1.0.0\"\ntrust: OFFICIAL\n---\n")
	result, err := e.InstallSkill("/skills/helper", manifest)
	require.NoError(t, err)
	assert.Equal(t, "ALLOW", string(result.Decision))
}
