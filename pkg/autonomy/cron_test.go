package autonomy

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

func TestCronSchedulerFiresOnMatchingMinute(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	sched := NewCronScheduler(b)

	require.NoError(t, sched.AddJob(CronJob{
		Name:         "nightly-report",
		Expr:         "30 2 * * *",
		Intent:       "generate nightly report",
		RequiredTags: []string{"reporting"},
	}))

	var posted []*types.Event
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		posted = append(posted, e)
		return nil
	})

	match := time.Date(2026, 8, 1, 2, 30, 0, 0, time.UTC)
	sched.tick(match)
	require.Len(t, posted, 1)
	assert.Equal(t, "generate nightly report", posted[0].Intent)

	miss := time.Date(2026, 8, 1, 2, 31, 0, 0, time.UTC)
	sched.tick(miss)
	assert.Len(t, posted, 1)
}

func TestCronSchedulerDedupesSameMinute(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	sched := NewCronScheduler(b)
	require.NoError(t, sched.AddJob(CronJob{Name: "hourly", Expr: "0 * * * *", Intent: "hourly sweep"}))

	var posted []*types.Event
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, func(e *types.Event) error {
		posted = append(posted, e)
		return nil
	})

	top := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	sched.tick(top)
	sched.fire(sched.jobs[0].job, top.Truncate(time.Minute))
	assert.Len(t, posted, 1)
}

func TestCronSchedulerRejectsMalformedExpr(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	sched := NewCronScheduler(b)
	err := sched.AddJob(CronJob{Name: "bad", Expr: "not-a-cron-expr", Intent: "x"})
	assert.Error(t, err)
}
