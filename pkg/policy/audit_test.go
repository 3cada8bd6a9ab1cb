package policy

import (
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogRecordsEveryTopic(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	audit := NewAuditLog(b)

	_, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, Intent: "ping"})
	require.NoError(t, err)

	entries := audit.GetLog("")
	require.Len(t, entries, 1)
	assert.Equal(t, types.TopicTaskPosted, entries[0].Topic)
}

func TestAuditLogReplayFollowsParentChain(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	audit := NewAuditLog(b)

	root, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, Intent: "root"})
	require.NoError(t, err)

	child, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, ParentEventID: root.EventID, Intent: "child"})
	require.NoError(t, err)

	_, err = b.Publish(&types.Event{Topic: types.TopicTaskClaimed, Payload: map[string]any{"event_id": child.EventID, "agent_id": "a1"}})
	require.NoError(t, err)

	subtree := audit.Replay(root.EventID)
	assert.GreaterOrEqual(t, len(subtree), 3)
}

func TestAuditLogGetByFailureCategory(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	audit := NewAuditLog(b)

	_, err := b.Publish(&types.Event{
		Topic:   types.TopicTaskFailed,
		Payload: map[string]any{"event_id": "e1", "category": "TRANSIENT"},
	})
	require.NoError(t, err)
	_, err = b.Publish(&types.Event{
		Topic:   types.TopicTaskFailed,
		Payload: map[string]any{"event_id": "e2", "category": "POLICY"},
	})
	require.NoError(t, err)

	transient := audit.GetByFailureCategory("TRANSIENT")
	require.Len(t, transient, 1)
	assert.Equal(t, "e1", transient[0].Payload["event_id"])
}

func TestAuditLogApprovalStatsComputesPendingAndLatency(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	audit := NewAuditLog(b)

	_, err := b.Publish(&types.Event{Topic: types.TopicApprovalRequired, Payload: map[string]any{"event_id": "t1"}})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = b.Publish(&types.Event{Topic: types.TopicApprovalDecision, Payload: map[string]any{"event_id": "t1", "decision": "APPROVE"}})
	require.NoError(t, err)

	_, err = b.Publish(&types.Event{Topic: types.TopicApprovalRequired, Payload: map[string]any{"event_id": "t2"}})
	require.NoError(t, err)

	stats := audit.GetApprovalStats()
	assert.Equal(t, 1, stats.Pending)
	assert.GreaterOrEqual(t, stats.P50MS, int64(0))
}
