package autonomy

import (
	"fmt"
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronJob is a scheduled intent. Expr is parsed with cron's standard
// five-field syntax (minute hour day-of-month month day-of-week).
type CronJob struct {
	Name         string
	Expr         string
	Intent       string
	RequiredTags []string
}

type scheduledJob struct {
	job      CronJob
	schedule cron.Schedule
}

// CronScheduler ticks every minute and fires any job whose schedule
// matches that minute, publishing TASK_POSTED with an idempotency key
// keyed to the job and the minute so a missed or doubled tick never
// double-fires.
type CronScheduler struct {
	bus    *bus.Bus
	logger zerolog.Logger
	parser cron.Parser

	mu     sync.Mutex
	jobs   []*scheduledJob
	ticker *time.Ticker
	done   chan struct{}
}

// NewCronScheduler creates a scheduler with no jobs registered yet. Call
// AddJob before Start.
func NewCronScheduler(b *bus.Bus) *CronScheduler {
	return &CronScheduler{
		bus:    b,
		logger: log.WithComponent("cron"),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// AddJob parses job.Expr and registers it. It returns an error if the
// expression is malformed.
func (c *CronScheduler) AddJob(job CronJob) error {
	schedule, err := c.parser.Parse(job.Expr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", job.Expr, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, &scheduledJob{job: job, schedule: schedule})
	return nil
}

// Start begins the once-a-minute tick loop. It is idempotent; calling it
// twice without a Stop in between is a no-op.
func (c *CronScheduler) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return
	}
	c.ticker = time.NewTicker(time.Minute)
	c.done = make(chan struct{})
	ticker, done := c.ticker, c.done
	go c.loop(ticker, done)
}

func (c *CronScheduler) loop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case now := <-ticker.C:
			c.tick(now)
		case <-done:
			return
		}
	}
}

func (c *CronScheduler) tick(now time.Time) {
	minute := now.Truncate(time.Minute)
	prev := minute.Add(-time.Minute)

	c.mu.Lock()
	jobs := make([]*scheduledJob, len(c.jobs))
	copy(jobs, c.jobs)
	c.mu.Unlock()

	for _, sj := range jobs {
		if !sj.schedule.Next(prev).Equal(minute) {
			continue
		}
		c.fire(sj.job, minute)
	}
}

func (c *CronScheduler) fire(job CronJob, minute time.Time) {
	key := fmt.Sprintf("cron:%s:%d", job.Name, minute.Unix())
	_, err := c.bus.Publish(&types.Event{
		Topic:          types.TopicTaskPosted,
		Intent:         job.Intent,
		RequiredTags:   job.RequiredTags,
		IdempotencyKey: key,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("job", job.Name).Msg("cron job failed to publish")
		return
	}
	c.logger.Info().Str("job", job.Name).Time("minute", minute).Msg("cron job fired")
}

// Stop halts the tick loop. Safe to call even if Start was never called.
func (c *CronScheduler) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.done)
	c.ticker = nil
	c.done = nil
}
