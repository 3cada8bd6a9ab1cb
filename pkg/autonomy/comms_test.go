package autonomy

import (
	"fmt"
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

func TestAgentCommsSendMessagePublishesIntelReady(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	comms := NewAgentComms(b, fixedClock)

	var intel []*types.Event
	b.Subscribe([]types.Topic{types.TopicIntelReady}, func(e *types.Event) error {
		intel = append(intel, e)
		return nil
	})

	_, err := comms.SendMessage("agent-a", "agent-b", map[string]any{"note": "handoff"})
	require.NoError(t, err)
	require.Len(t, intel, 1)
	assert.Equal(t, "agent-a", intel[0].Payload["from"])
	assert.Equal(t, "agent-b", intel[0].Payload["to"])

	history := comms.History("agent-b")
	require.Len(t, history, 1)
	assert.Equal(t, "DIRECT", history[0].Type)
}

func TestAgentCommsBroadcastReachesZoneMembers(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	comms := NewAgentComms(b, fixedClock)
	comms.RegisterZone("agent-a", "zone-1")
	comms.RegisterZone("agent-b", "zone-1")
	comms.RegisterZone("agent-c", "zone-2")

	_, err := comms.Broadcast("agent-a", "zone-1", map[string]any{"alert": "fire"})
	require.NoError(t, err)

	assert.Len(t, comms.History("agent-b"), 1)
	assert.Empty(t, comms.History("agent-c"))
}

func TestAgentCommsBoundsMessagesPerSession(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	comms := NewAgentComms(b, fixedClock)

	for i := 0; i < maxMessagesPerSess+10; i++ {
		_, err := comms.SendMessage("agent-a", "agent-b", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	history := comms.History("agent-b")
	require.Len(t, history, maxMessagesPerSess)
	assert.Equal(t, 10, int(history[0].Payload["seq"].(int)))
}

func TestAgentCommsEvictsOldestSessionAtCapacity(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	comms := NewAgentComms(b, fixedClock)

	for i := 0; i < maxSessions+1; i++ {
		to := fmt.Sprintf("agent-%d", i)
		_, err := comms.SendMessage("agent-a", to, map[string]any{})
		require.NoError(t, err)
	}

	assert.Empty(t, comms.History("agent-0"))
	assert.NotEmpty(t, comms.History(fmt.Sprintf("agent-%d", maxSessions)))
}
