package policy

import (
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *bus.Bus {
	return bus.New(storage.NewMemStore())
}

func TestTierForRisk(t *testing.T) {
	assert.Equal(t, types.TierFast, TierForRisk(types.RiskLow))
	assert.Equal(t, types.TierStandard, TierForRisk(types.RiskMedium))
	assert.Equal(t, types.TierCritical, TierForRisk(types.RiskHigh))
}

func TestApprovalEngineHumanDecisionStopsTimers(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	engine := NewApprovalEngine(b, nil)
	defer engine.Shutdown()

	var decisions []*types.Event
	b.Subscribe([]types.Topic{types.TopicApprovalDecision}, func(e *types.Event) error {
		decisions = append(decisions, e)
		return nil
	})

	_, err := b.Publish(&types.Event{
		Topic:   types.TopicApprovalRequired,
		Payload: map[string]any{"event_id": "task-1", "risk_level": "LOW"},
	})
	require.NoError(t, err)

	var approvalID string
	engine.mu.Lock()
	for id := range engine.records {
		approvalID = id
	}
	engine.mu.Unlock()
	require.NotEmpty(t, approvalID)

	ok := engine.Decide(approvalID, "APPROVE", "looks fine", "human-1")
	require.True(t, ok)
	require.Len(t, decisions, 1)
	assert.Equal(t, "APPROVE", decisions[0].Payload["decision"])

	record, found := engine.Record(approvalID)
	require.True(t, found)
	assert.Equal(t, types.ApprovalApproved, record.Status)
}

func TestApprovalEngineFastTierTimesOutToDowngrade(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	engine := NewApprovalEngine(b, nil)
	defer engine.Shutdown()

	tierDurations[types.TierFast] = struct {
		reminder         time.Duration
		timeout          time.Duration
		escalateFollowup time.Duration
	}{5 * time.Millisecond, 20 * time.Millisecond, 0}

	var decisions []*types.Event
	b.Subscribe([]types.Topic{types.TopicApprovalDecision}, func(e *types.Event) error {
		decisions = append(decisions, e)
		return nil
	})

	_, err := b.Publish(&types.Event{
		Topic:   types.TopicApprovalRequired,
		Payload: map[string]any{"event_id": "task-2", "risk_level": "LOW"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(decisions) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "APPROVE", decisions[0].Payload["decision"])
	assert.Equal(t, "SLA_MONITOR", decisions[0].Payload["decided_by"])
}
