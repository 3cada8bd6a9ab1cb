package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return New(storage.NewMemStore())
}

func TestPublishGetEventRoundTrip(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	published, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, Intent: "clean leads"})
	require.NoError(t, err)

	got, err := b.GetEvent(published.EventID)
	require.NoError(t, err)
	assert.Equal(t, published.EventID, got.EventID)
	assert.Equal(t, types.EventOpen, got.Status)
}

func TestIdempotentPublishReturnsSameEvent(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	first, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, Intent: "a", IdempotencyKey: "k1"})
	require.NoError(t, err)

	second, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted, Intent: "a-again", IdempotencyKey: "k1"})
	require.NoError(t, err)

	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, 1, len(b.Query(Filter{})))
}

func TestClaimIsExclusive(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	e, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	r1 := b.Claim(e.EventID, "agent-1", 0)
	assert.True(t, r1.OK)

	r2 := b.Claim(e.EventID, "agent-2", 0)
	assert.False(t, r2.OK)
	assert.Equal(t, "already claimed", r2.Reason)
}

func TestClaimThenReleaseResetsToOpen(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	e, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	r := b.Claim(e.EventID, "agent-1", 0)
	require.True(t, r.OK)

	b.Release(e.EventID, "agent-1")

	got, err := b.GetEvent(e.EventID)
	require.NoError(t, err)
	assert.Equal(t, types.EventOpen, got.Status)
	assert.Empty(t, got.ClaimedBy)
}

func TestLeaseExpiryResetsEventAndPublishesRetryScheduled(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	var gotRetry bool
	b.Subscribe([]types.Topic{types.TopicTaskRetryScheduled}, func(e *types.Event) error {
		if e.Payload["reason"] == "lease_expired" {
			gotRetry = true
		}
		return nil
	})

	e, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	r := b.Claim(e.EventID, "agent-1", 20)
	require.True(t, r.OK)

	time.Sleep(100 * time.Millisecond)

	got, err := b.GetEvent(e.EventID)
	require.NoError(t, err)
	assert.Equal(t, types.EventOpen, got.Status)
	assert.True(t, gotRetry)
}

func TestHeartbeatRenewsLease(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	e, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	r := b.Claim(e.EventID, "agent-1", 60)
	require.True(t, r.OK)

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.Heartbeat(e.EventID, "agent-1"))

	time.Sleep(40 * time.Millisecond)

	got, err := b.GetEvent(e.EventID)
	require.NoError(t, err)
	assert.Equal(t, types.EventClaimed, got.Status)
}

func TestHandlerErrorRoutesToDLQ(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		return errors.New("boom")
	})

	e, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	dlq := b.GetDLQ(10)
	require.Len(t, dlq, 1)
	assert.Equal(t, e.EventID, dlq[0].Event.EventID)
	assert.Equal(t, "boom", dlq[0].Reason)
}

func TestSubscriberPanicIsCaught(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		panic("unexpected")
	})

	_, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	assert.Len(t, b.GetDLQ(10), 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	calls := 0
	unsub := b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		calls++
		return nil
	})
	unsub()

	_, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)

	assert.Equal(t, 0, calls)
}

func TestRetryFromDLQRepublishesAsOpen(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	e, err := b.Publish(&types.Event{Topic: types.TopicTaskPosted})
	require.NoError(t, err)
	b.DeadLetter(e, "manual")

	revived, err := b.RetryFromDLQ(e.EventID)
	require.NoError(t, err)
	assert.Equal(t, types.EventOpen, revived.Status)
}
