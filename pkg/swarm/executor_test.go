package swarm

import (
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorClosesTaskOnMockSuccess(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	m := NewMatcher(b)
	NewExecutor(b, func(ExecutionMode) AgentRuntime { return NewMockRuntime() })
	m.RegisterAgent(newAgent("agent-1", 0.9, "code"))

	event, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, RequiredTags: []string{"code"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := b.GetEvent(event.EventID)
		return err == nil && got.Status == types.EventClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClassifyFailureBucketsReason(t *testing.T) {
	assert.Equal(t, "TRANSIENT", classifyFailure("connection timeout talking to sandbox"))
	assert.Equal(t, "POLICY", classifyFailure("blocked by compliance policy"))
	assert.Equal(t, "MALICE", classifyFailure("detected a prompt injection attempt"))
	assert.Equal(t, "MODEL", classifyFailure("execution_failed: tool crashed"))
	assert.Equal(t, "TOOLING", classifyFailure("unexpected nil pointer"))
}
