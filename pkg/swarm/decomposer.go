package swarm

import (
	"sync"

	"github.com/corpcraft/swarmengine/pkg/boundedset"
	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// categoryOf buckets a tag into a coarse category so two tags from the
// same family (e.g. "code" and "review") don't each force a split.
var categoryOf = map[string]string{
	"data":   "data",
	"report": "report",
	"bug":    "engineering",
	"code":   "engineering",
	"review": "engineering",
	"deploy": "ops",
	"design": "design",
	"test":   "engineering",
}

func categoriesFor(tags []string) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, t := range tags {
		cat, ok := categoryOf[t]
		if !ok {
			cat = t
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		cats = append(cats, cat)
	}
	return cats
}

// Decomposer fans a multi-category root task into one TASK_POSTED per
// category, only in team execution mode.
type Decomposer struct {
	bus    *bus.Bus
	logger zerolog.Logger

	mu        sync.Mutex
	processed *boundedset.Set
}

// NewDecomposer creates a Decomposer subscribed to TASK_POSTED.
func NewDecomposer(b *bus.Bus) *Decomposer {
	d := &Decomposer{
		bus:       b,
		logger:    log.WithComponent("decomposer"),
		processed: boundedset.New(processedEventsCap),
	}
	b.Subscribe([]types.Topic{types.TopicTaskPosted}, d.handle)
	return d
}

func (d *Decomposer) handle(event *types.Event) error {
	if event.ParentEventID != "" {
		return nil
	}
	if _, isRetry := event.Payload["retry_of"]; isRetry {
		return nil
	}
	if GetExecutionMode() != ModeTeam {
		return nil
	}

	d.mu.Lock()
	if d.processed.Contains(event.EventID) {
		d.mu.Unlock()
		return nil
	}
	d.processed.Add(event.EventID)
	d.mu.Unlock()

	categories := categoriesFor(event.RequiredTags)
	if len(categories) < 2 {
		return nil
	}

	// Synchronous, before any sub-task is published, so a concurrently
	// running Matcher never sees the root as still OPEN.
	if err := d.bus.Transition(event.EventID, types.EventResolving); err != nil {
		return nil
	}

	metrics.TasksDecomposedTotal.Inc()

	if _, err := d.bus.Publish(&types.Event{
		Topic:         types.TopicTaskDecomposed,
		ParentEventID: event.EventID,
		Payload: map[string]any{
			"event_id":   event.EventID,
			"categories": categories,
		},
	}); err != nil {
		return err
	}

	for _, cat := range categories {
		tags := tagsInCategory(event.RequiredTags, cat)
		if _, err := d.bus.Publish(&types.Event{
			Topic:         types.TopicTaskPosted,
			Intent:        event.Intent,
			ParentEventID: event.EventID,
			RequiredTags:  tags,
			RiskLevel:     event.RiskLevel,
			Budget:        event.Budget,
			Payload:       map[string]any{"category": cat},
		}); err != nil {
			d.logger.Error().Err(err).Str("category", cat).Msg("failed to publish sub-task")
		}
	}

	return nil
}

func tagsInCategory(tags []string, cat string) []string {
	var out []string
	for _, t := range tags {
		c, ok := categoryOf[t]
		if !ok {
			c = t
		}
		if c == cat {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = []string{cat}
	}
	return out
}
