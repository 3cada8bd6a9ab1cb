package swarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/notify"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	approvalTimeout       = 30 * time.Second
	overloadMediumThresh  = 3
	overloadHighThresh    = 5
	lowResourceRatioFloor = 0.1
)

type pendingSummon struct {
	request types.SummonRequest
	timer   *time.Timer
}

// Summoner raises AGENT_SUMMON_REQUEST on skill gaps, agent overload and
// team-mode decomposition, gates the decision through autonomy level and
// remaining budget, and resolves a request by either finding an idle
// matching agent or publishing a recruitment TASK_POSTED.
type Summoner struct {
	bus      *bus.Bus
	matcher  *Matcher
	budget   *BudgetTracker
	notifier notify.Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingSummon
}

// NewSummoner creates a Summoner wired to matcher's roster and budget's
// HUD state. notifier may be nil, in which case the urgency-driven
// auto-approval timeout is only logged.
func NewSummoner(b *bus.Bus, matcher *Matcher, budget *BudgetTracker, notifier notify.Notifier) *Summoner {
	s := &Summoner{
		bus:      b,
		matcher:  matcher,
		budget:   budget,
		notifier: notifier,
		logger:   log.WithComponent("summoner"),
		pending:  make(map[string]*pendingSummon),
	}
	b.Subscribe([]types.Topic{types.TopicTaskClaimed}, s.handleClaimed)
	b.Subscribe([]types.Topic{types.TopicTaskProgress}, s.handleProgress)
	b.Subscribe([]types.Topic{types.TopicTaskAnalyzed}, s.handleAnalyzed)
	b.Subscribe([]types.Topic{types.TopicApprovalDecision}, s.handleDecision)
	return s
}

// handleClaimed bumps the claiming agent's in-flight count. The Matcher
// owns the matching decrement on TASK_CLOSED/TASK_FAILED since it is the
// sole owner of the agent roster.
func (s *Summoner) handleClaimed(event *types.Event) error {
	eventID, _ := event.Payload["event_id"].(string)
	agentID, _ := event.Payload["agent_id"].(string)
	if eventID == "" || agentID == "" {
		return nil
	}
	s.matcher.IncrementConcurrent(agentID)

	task, err := s.bus.GetEvent(eventID)
	if err != nil {
		return nil
	}
	agent, ok := s.matcher.Agent(agentID)
	if !ok {
		return nil
	}
	if !agent.HasAllTags(task.RequiredTags) {
		s.raise(types.SummonSkillGap, task.RequiredTags, types.UrgencyMedium, agentID, agent.Name)
	}
	return nil
}

func (s *Summoner) handleProgress(event *types.Event) error {
	agentID, _ := event.Payload["agent_id"].(string)
	if agentID == "" {
		return nil
	}
	agent, ok := s.matcher.Agent(agentID)
	if !ok {
		return nil
	}
	switch {
	case agent.ConcurrentTasks >= overloadHighThresh:
		s.raise(types.SummonOverload, nil, types.UrgencyHigh, agentID, agent.Name)
	case agent.ConcurrentTasks >= overloadMediumThresh:
		s.raise(types.SummonOverload, nil, types.UrgencyMedium, agentID, agent.Name)
	}
	return nil
}

func (s *Summoner) handleAnalyzed(event *types.Event) error {
	if GetExecutionMode() != ModeTeam {
		return nil
	}
	complexity, _ := event.Payload["complexity"].(string)
	if complexity != string(ComplexityComplex) {
		return nil
	}
	suggested, _ := event.Payload["suggested_agents"].([]string)
	s.raise(types.SummonDecomposition, suggested, types.UrgencyLow, "", "")
	return nil
}

// raise publishes an AGENT_SUMMON_REQUEST, gated by remaining HUD budget
// and the autonomy policy, and arms a 30s approval timeout.
func (s *Summoner) raise(reason types.SummonReason, tags []string, urgency types.Urgency, requestingAgentID, requestingAgentName string) {
	state := s.budget.State()
	if state.HP.Max > 0 && state.HP.Current/state.HP.Max < lowResourceRatioFloor {
		s.logger.Warn().Str("reason", string(reason)).Msg("summon declined: HP budget exhausted")
		return
	}
	if state.MP.Max > 0 && state.MP.Current/state.MP.Max < lowResourceRatioFloor {
		s.logger.Warn().Str("reason", string(reason)).Msg("summon declined: MP budget exhausted")
		return
	}

	request := types.SummonRequest{
		RequestID:           uuid.New().String(),
		RequestingAgentID:   requestingAgentID,
		RequestingAgentName: requestingAgentName,
		Reason:              reason,
		RequiredTags:        tags,
		Urgency:             urgency,
		ApprovalTimeoutMS:   approvalTimeout.Milliseconds(),
		CreatedAt:           time.Now(),
	}

	_, _ = s.bus.Publish(&types.Event{
		Topic: types.TopicAgentSummonRequest,
		Payload: map[string]any{
			"request_id":    request.RequestID,
			"reason":        string(request.Reason),
			"required_tags": request.RequiredTags,
			"urgency":       string(request.Urgency),
		},
	})

	if s.autoApprove(urgency) {
		s.resolve(request)
		return
	}

	_, _ = s.bus.Publish(&types.Event{
		Topic: types.TopicApprovalRequired,
		Payload: map[string]any{
			"request_id": request.RequestID,
			"kind":       "AGENT_SUMMON",
			"urgency":    string(request.Urgency),
		},
	})

	s.mu.Lock()
	s.pending[request.RequestID] = &pendingSummon{
		request: request,
		timer: time.AfterFunc(approvalTimeout, func() {
			s.onTimeout(request.RequestID)
		}),
	}
	s.mu.Unlock()
}

func (s *Summoner) autoApprove(urgency types.Urgency) bool {
	switch GetAutonomyLevel() {
	case 3:
		return true
	case 2:
		return urgency == types.UrgencyLow || urgency == types.UrgencyMedium
	default:
		return false
	}
}

func (s *Summoner) handleDecision(event *types.Event) error {
	requestID, _ := event.Payload["request_id"].(string)
	decision, _ := event.Payload["decision"].(string)
	if requestID == "" {
		return nil
	}

	s.mu.Lock()
	p, ok := s.pending[requestID]
	if ok {
		p.timer.Stop()
		delete(s.pending, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if decision == "APPROVE" {
		s.resolve(p.request)
	} else {
		s.logger.Info().Str("request_id", requestID).Msg("summon request rejected")
	}
	return nil
}

func (s *Summoner) onTimeout(requestID string) {
	s.mu.Lock()
	p, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if p.request.Urgency == types.UrgencyHigh || p.request.Urgency == types.UrgencyCritical {
		s.logger.Warn().Str("request_id", requestID).Msg("summon approval timed out, auto-approving due to urgency")
		if s.notifier != nil {
			_ = s.notifier.Alert("Summon auto-approved",
				fmt.Sprintf("request %s (%s, urgency %s) timed out and was auto-approved", requestID, p.request.Reason, p.request.Urgency))
		}
		s.resolve(p.request)
		return
	}

	s.logger.Info().Str("request_id", requestID).Msg("summon approval timed out, queued")
}

// Shutdown cancels every pending summon approval timeout.
func (s *Summoner) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[string]*pendingSummon)
}

// resolve finds an idle agent matching request's tags, or failing that
// publishes a recruitment TASK_POSTED, then emits AGENT_SUMMON_RESOLVED.
func (s *Summoner) resolve(request types.SummonRequest) {
	for _, agent := range s.matcher.ListAgents() {
		if agent.Status == types.AgentIdle && agent.HasAllTags(request.RequiredTags) {
			_, _ = s.bus.Publish(&types.Event{
				Topic: types.TopicAgentSummonResolved,
				Payload: map[string]any{
					"request_id": request.RequestID,
					"agent_id":   agent.AgentID,
					"method":     "matched_idle",
				},
			})
			return
		}
	}

	_, _ = s.bus.Publish(&types.Event{
		Topic:        types.TopicTaskPosted,
		Intent:       "recruit agent for: " + string(request.Reason),
		RequiredTags: request.RequiredTags,
		RiskLevel:    types.RiskLow,
		Payload:      map[string]any{"recruitment_for": request.RequestID},
	})

	_, _ = s.bus.Publish(&types.Event{
		Topic: types.TopicAgentSummonResolved,
		Payload: map[string]any{
			"request_id": request.RequestID,
			"method":     "recruitment_posted",
		},
	})
}
