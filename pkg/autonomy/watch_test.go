package autonomy

import (
	"testing"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReactorFiresOnMatchingPayload(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	var clock int64
	reactor := NewWatchReactor(b, func() int64 { return clock })
	reactor.AddRule(WatchRule{
		Name:           "disk-pressure",
		Topics:         []types.Topic{types.TopicSOSError},
		Filter:         map[string]string{"kind": "DISK_PRESSURE"},
		IntentTemplate: "free up space on {{host}}",
		RequiredTags:   []string{"ops"},
	})

	var posted []*types.Event
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		posted = append(posted, e)
		return nil
	})

	_, err := b.Publish(&types.Event{
		Topic:   types.TopicSOSError,
		Payload: map[string]any{"kind": "DISK_PRESSURE", "host": "node-7"},
	})
	require.NoError(t, err)

	require.Len(t, posted, 1)
	assert.Equal(t, "free up space on node-7", posted[0].Intent)
}

func TestWatchReactorIgnoresNonMatchingFilter(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	reactor := NewWatchReactor(b, func() int64 { return 0 })
	reactor.AddRule(WatchRule{
		Name:           "disk-pressure",
		Topics:         []types.Topic{types.TopicSOSError},
		Filter:         map[string]string{"kind": "DISK_PRESSURE"},
		IntentTemplate: "free up space",
	})

	var posted []*types.Event
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		posted = append(posted, e)
		return nil
	})

	_, err := b.Publish(&types.Event{
		Topic:   types.TopicSOSError,
		Payload: map[string]any{"kind": "NETWORK_FLAP"},
	})
	require.NoError(t, err)
	assert.Empty(t, posted)
}

func TestWatchReactorEnforcesCooldown(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	var clock int64
	reactor := NewWatchReactor(b, func() int64 { return clock })
	reactor.AddRule(WatchRule{
		Name:           "repeat",
		Topics:         []types.Topic{types.TopicSOSError},
		IntentTemplate: "handle it",
		Cooldown:       60,
	})

	var posted []*types.Event
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		posted = append(posted, e)
		return nil
	})

	_, _ = b.Publish(&types.Event{Topic: types.TopicSOSError, Payload: map[string]any{}})
	clock = 10
	_, _ = b.Publish(&types.Event{Topic: types.TopicSOSError, Payload: map[string]any{}})
	assert.Len(t, posted, 1)

	clock = 61
	_, _ = b.Publish(&types.Event{Topic: types.TopicSOSError, Payload: map[string]any{}})
	assert.Len(t, posted, 2)
}

func TestWatchReactorEnforcesMaxConcurrent(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	reactor := NewWatchReactor(b, func() int64 { return 0 })
	reactor.AddRule(WatchRule{
		Name:           "capped",
		Topics:         []types.Topic{types.TopicSOSError},
		IntentTemplate: "handle it",
		MaxConcurrent:  1,
	})

	var posted []*types.Event
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		posted = append(posted, e)
		return nil
	})

	_, _ = b.Publish(&types.Event{Topic: types.TopicSOSError, Payload: map[string]any{}})
	_, _ = b.Publish(&types.Event{Topic: types.TopicSOSError, Payload: map[string]any{}})
	require.Len(t, posted, 1)

	_, err := b.Publish(&types.Event{
		Topic:   types.TopicTaskClosed,
		Payload: map[string]any{"event_id": posted[0].EventID},
	})
	require.NoError(t, err)

	_, _ = b.Publish(&types.Event{Topic: types.TopicSOSError, Payload: map[string]any{}})
	assert.Len(t, posted, 2)
}
