package swarm

import (
	"context"
	"strings"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/metrics"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// RuntimeFactory builds the AgentRuntime an Executor drives for one claim.
// Swapped out in tests for a deterministic fake.
type RuntimeFactory func(mode ExecutionMode) AgentRuntime

// DefaultRuntimeFactory returns a MockRuntime in mock mode and a
// TeamRuntime otherwise.
func DefaultRuntimeFactory(mode ExecutionMode) AgentRuntime {
	if mode == ModeMock {
		return NewMockRuntime()
	}
	return NewTeamRuntime(0, 0)
}

// Executor drives a claimed task to completion: it heartbeats the lease at
// a third of its duration, streams TASK_PROGRESS, and on completion emits
// ARTIFACT_READY, EVIDENCE_READY and then TASK_CLOSED or TASK_FAILED, in
// that order, before releasing the claim.
type Executor struct {
	bus     *bus.Bus
	logger  zerolog.Logger
	factory RuntimeFactory
}

// NewExecutor creates an Executor subscribed to TASK_CLAIMED.
func NewExecutor(b *bus.Bus, factory RuntimeFactory) *Executor {
	if factory == nil {
		factory = DefaultRuntimeFactory
	}
	e := &Executor{bus: b, logger: log.WithComponent("executor"), factory: factory}
	b.Subscribe([]types.Topic{types.TopicTaskClaimed}, e.handleClaimed)
	return e
}

func (e *Executor) handleClaimed(signal *types.Event) error {
	eventID, _ := signal.Payload["event_id"].(string)
	agentID, _ := signal.Payload["agent_id"].(string)
	if eventID == "" || agentID == "" {
		return nil
	}

	task, err := e.bus.GetEvent(eventID)
	if err != nil {
		return err
	}

	go e.run(task, agentID)
	return nil
}

func (e *Executor) run(task *types.Event, agentID string) {
	logger := log.WithAgentID(log.WithEventID(e.logger, task.EventID), agentID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := e.factory(GetExecutionMode())

	heartbeatEvery := bus.LeaseForRisk(task.RiskLevel) / 3
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()

	profile := ExecutionProfile{Intent: task.Intent, RequiredTags: task.RequiredTags}
	if task.Budget != nil {
		profile.MaxTokens = task.Budget.MaxTokens
		profile.MaxMinutes = task.Budget.MaxMinutes
		profile.MaxCash = task.Budget.MaxCash
	}

	progressCh, resultCh := rt.Execute(ctx, profile)

	var result Result
	done := false
	for !done {
		select {
		case <-ticker.C:
			if !e.bus.Heartbeat(task.EventID, agentID) {
				logger.Warn().Msg("heartbeat rejected, claim lost")
				rt.Cancel()
			}
		case p, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			_, _ = e.bus.Publish(&types.Event{
				Topic: types.TopicTaskProgress,
				Payload: map[string]any{
					"event_id": task.EventID,
					"agent_id": agentID,
					"percent":  p.Percent,
					"message":  p.Message,
				},
			})
		case r, ok := <-resultCh:
			if !ok {
				done = true
				continue
			}
			result = r
			done = true
		}
	}

	delta := &types.CostDelta{TokensUsed: result.TokensUsed, MinutesUsed: result.MinutesUsed, CashUsed: result.CashUsed}
	metrics.TokensSpentTotal.Add(float64(result.TokensUsed))
	metrics.CashSpentTotal.Add(result.CashUsed)

	if result.Success {
		e.finishSuccess(task, agentID, delta, result)
	} else {
		e.finishFailure(task, agentID, delta, result)
	}

	e.bus.Release(task.EventID, agentID)
}

func (e *Executor) finishSuccess(task *types.Event, agentID string, delta *types.CostDelta, result Result) {
	if err := e.bus.CloseEvent(task.EventID, types.EventClosed, delta); err != nil {
		e.logger.Error().Err(err).Str("event_id", task.EventID).Msg("failed to close event")
		return
	}

	_, _ = e.bus.Publish(&types.Event{
		Topic:         types.TopicArtifactReady,
		ParentEventID: task.EventID,
		Payload:       map[string]any{"event_id": task.EventID, "agent_id": agentID, "artifact": result.Artifact},
	})
	_, _ = e.bus.Publish(&types.Event{
		Topic:         types.TopicEvidenceReady,
		ParentEventID: task.EventID,
		Payload:       map[string]any{"event_id": task.EventID, "agent_id": agentID},
	})
	_, _ = e.bus.Publish(&types.Event{
		Topic: types.TopicTaskClosed,
		Payload: map[string]any{
			"event_id":     task.EventID,
			"agent_id":     agentID,
			"tokens_used":  delta.TokensUsed,
			"minutes_used": delta.MinutesUsed,
			"cash_used":    delta.CashUsed,
		},
	})

	e.settleParent(task)
}

func (e *Executor) finishFailure(task *types.Event, agentID string, delta *types.CostDelta, result Result) {
	if err := e.bus.CloseEvent(task.EventID, types.EventFailed, delta); err != nil {
		e.logger.Error().Err(err).Str("event_id", task.EventID).Msg("failed to close event")
		return
	}

	reason := result.Reason
	if reason == "" {
		reason = "execution_failed"
	}

	_, _ = e.bus.Publish(&types.Event{
		Topic: types.TopicTaskFailed,
		Payload: map[string]any{
			"event_id":   task.EventID,
			"agent_id":   agentID,
			"reason":     reason,
			"category":   classifyFailure(reason),
			"retry_of":   task.Payload["retry_of"],
		},
	})

	e.settleParent(task)
}

// classifyFailure buckets a free-text failure reason into the taxonomy
// Recovery uses to decide retryability.
func classifyFailure(reason string) string {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "inject") || strings.Contains(r, "malicious") || strings.Contains(r, "exploit"):
		return "MALICE"
	case strings.Contains(r, "policy") || strings.Contains(r, "permission") || strings.Contains(r, "compliance"):
		return "POLICY"
	case strings.Contains(r, "network") || strings.Contains(r, "timeout") || strings.Contains(r, "socket"):
		return "TRANSIENT"
	case strings.Contains(r, "execution_failed"):
		return "MODEL"
	default:
		return "TOOLING"
	}
}

// settleParent checks whether task's siblings have all reached a terminal
// state and, if so, closes the decomposed parent with their summed cost
// delta. A no-op for root tasks.
func (e *Executor) settleParent(task *types.Event) {
	if task.ParentEventID == "" {
		return
	}

	parent, err := e.bus.GetEvent(task.ParentEventID)
	if err != nil || parent.Status.Terminal() {
		return
	}

	parentID := task.ParentEventID
	siblings := e.bus.Query(bus.Filter{ParentEventID: &parentID})

	total := types.CostDelta{}
	anyFailed := false
	for _, sib := range siblings {
		if sib.Topic != types.TopicTaskPosted {
			continue
		}
		if !sib.Status.Terminal() {
			return
		}
		if sib.Status == types.EventFailed {
			anyFailed = true
		}
		if sib.CostDelta != nil {
			total = total.Add(*sib.CostDelta)
		}
	}

	status := types.EventClosed
	topic := types.TopicTaskClosed
	if anyFailed {
		status = types.EventFailed
		topic = types.TopicTaskFailed
	}

	if err := e.bus.CloseEvent(parentID, status, &total); err != nil {
		return
	}
	_, _ = e.bus.Publish(&types.Event{
		Topic: topic,
		Payload: map[string]any{
			"event_id":     parentID,
			"tokens_used":  total.TokensUsed,
			"minutes_used": total.MinutesUsed,
			"cash_used":    total.CashUsed,
			"decomposed":   true,
		},
	})
}
