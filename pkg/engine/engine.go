// Package engine wires every SwarmEngine subsystem together behind a
// single entry point: the event bus, the task coordination pipeline, the
// policy layer, the skill registry, and the autonomy engine. It exposes
// the same operations a REST/RPC front end would, as plain Go methods,
// so a caller never has to reach into an individual package to drive the
// system.
package engine

import (
	"fmt"
	"time"

	"github.com/corpcraft/swarmengine/pkg/autonomy"
	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/notify"
	"github.com/corpcraft/swarmengine/pkg/policy"
	"github.com/corpcraft/swarmengine/pkg/registry"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/swarm"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// Config controls the pieces of an Engine that vary between a production
// deployment and a test harness.
type Config struct {
	Store           storage.Store
	InitialHUD      types.HUDState
	RuntimeFactory  swarm.RuntimeFactory
	LLM             swarm.LLMAnalyzer
	Notifier        notify.Notifier
	Sandbox         policy.Sandbox
	TokenRevoker    policy.TokenRevoker
	SignatureVerify registry.SignatureVerifier
	SkillAllowlist  []string
}

// Engine owns the lifecycle of every subsystem. Subscriber registration
// order matters: the Decomposer must see TASK_POSTED before the Matcher
// does, so a root task mid-decomposition is never claimed out from under
// it. The constructors below preserve that order.
type Engine struct {
	Bus *bus.Bus

	Router     *swarm.Router
	Analyzer   *swarm.Analyzer
	Decomposer *swarm.Decomposer
	Matcher    *swarm.Matcher
	Executor   *swarm.Executor
	Recovery   *swarm.Recovery
	Budget     *swarm.BudgetTracker
	Summoner   *swarm.Summoner

	Approval *policy.ApprovalEngine
	EMP      *policy.EMPHandler
	Audit    *policy.AuditLog

	Registry *registry.Registry
	Gate     *registry.Gate

	Cron  *autonomy.CronScheduler
	Watch *autonomy.WatchReactor
	Comms *autonomy.AgentComms

	logger zerolog.Logger
}

// New constructs every subsystem and wires its subscriptions. It does not
// start the autonomy engine's ticking; call Start for that.
func New(cfg Config) *Engine {
	if cfg.RuntimeFactory == nil {
		cfg.RuntimeFactory = swarm.DefaultRuntimeFactory
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewLogNotifier()
	}

	b := bus.New(cfg.Store)

	router := swarm.NewRouter(b)
	analyzer := swarm.NewAnalyzer(b, cfg.LLM)
	decomposer := swarm.NewDecomposer(b)
	matcher := swarm.NewMatcher(b)
	executor := swarm.NewExecutor(b, cfg.RuntimeFactory)
	recovery := swarm.NewRecovery(b)
	budget := swarm.NewBudgetTracker(b, cfg.InitialHUD)
	summoner := swarm.NewSummoner(b, matcher, budget, cfg.Notifier)

	approval := policy.NewApprovalEngine(b, cfg.Notifier)
	emp := policy.NewEMPHandler(b, cfg.Sandbox, cfg.TokenRevoker)
	audit := policy.NewAuditLog(b)

	gate := registry.NewGate(cfg.SignatureVerify, cfg.SkillAllowlist)
	assetRegistry := registry.NewRegistry(b, cfg.Store, gate)

	cron := autonomy.NewCronScheduler(b)
	watch := autonomy.NewWatchReactor(b, func() int64 { return time.Now().Unix() })
	comms := autonomy.NewAgentComms(b, time.Now)

	return &Engine{
		Bus:        b,
		Router:     router,
		Analyzer:   analyzer,
		Decomposer: decomposer,
		Matcher:    matcher,
		Executor:   executor,
		Recovery:   recovery,
		Budget:     budget,
		Summoner:   summoner,
		Approval:   approval,
		EMP:        emp,
		Audit:      audit,
		Registry:   assetRegistry,
		Gate:       gate,
		Cron:       cron,
		Watch:      watch,
		Comms:      comms,
		logger:     log.WithComponent("engine"),
	}
}

// Start begins the autonomy engine's cron ticking. Nothing else in the
// Engine needs an explicit start; every other subsystem is already live
// once its subscriptions are registered in New.
func (e *Engine) Start() {
	e.Cron.Start()
	e.logger.Info().Msg("engine started")
}

// Shutdown stops every timer-driven subsystem: the cron scheduler's tick
// loop, the retry and summon-approval timers, the approval engine's
// reminder/timeout/escalation timers, and finally the bus's own lease
// timers. The bus's idempotency cache is not stopped here.
func (e *Engine) Shutdown() {
	e.Cron.Stop()
	e.Recovery.Shutdown()
	e.Summoner.Shutdown()
	e.Approval.Shutdown()
	e.Bus.Shutdown()
	e.logger.Info().Msg("engine shut down")
}

// PostIntent routes a free-form intent into the pipeline, returning the
// resulting TASK_POSTED event.
func (e *Engine) PostIntent(intent string, opts swarm.RouteOptions) (*types.Event, error) {
	return e.Router.Route(intent, opts)
}

// GetEvents returns every event on the bus matching filter.
func (e *Engine) GetEvents(filter bus.Filter) []*types.Event {
	return e.Bus.Query(filter)
}

// ClaimEvent attempts to claim eventID on behalf of agentID.
func (e *Engine) ClaimEvent(eventID, agentID string, leaseMS int64) bus.ClaimResult {
	return e.Bus.Claim(eventID, agentID, leaseMS)
}

// HeartbeatEvent renews agentID's lease on eventID.
func (e *Engine) HeartbeatEvent(eventID, agentID string) bool {
	return e.Bus.Heartbeat(eventID, agentID)
}

// CompleteEvent releases agentID's claim on eventID. Terminal state is
// set separately via the Executor's own CloseEvent path; this exists for
// callers that manage their own execution loop outside the Executor.
func (e *Engine) CompleteEvent(eventID, agentID string) {
	e.Bus.Release(eventID, agentID)
}

// DecideApproval resolves a pending human approval.
func (e *Engine) DecideApproval(approvalID, decision, reason, decidedBy string) bool {
	return e.Approval.Decide(approvalID, decision, reason, decidedBy)
}

// InstallSkill parses and gates a candidate skill manifest.
func (e *Engine) InstallSkill(skillDir string, content []byte) (*registry.InstallResult, error) {
	return e.Registry.InstallSkill(skillDir, content)
}

// GetExecutionMode returns the process-wide mock/claude/team mode.
func (e *Engine) GetExecutionMode() swarm.ExecutionMode {
	return swarm.GetExecutionMode()
}

// SetExecutionMode switches the process-wide mock/claude/team mode.
func (e *Engine) SetExecutionMode(mode swarm.ExecutionMode) {
	swarm.SetExecutionMode(mode)
}

// RegisterAgent adds an agent to the Matcher's roster.
func (e *Engine) RegisterAgent(agent *types.Agent) {
	e.Matcher.RegisterAgent(agent)
}

// AddCronJob validates and registers a scheduled intent.
func (e *Engine) AddCronJob(job autonomy.CronJob) error {
	if err := e.Cron.AddJob(job); err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}
	return nil
}

// AddWatchRule registers a reactive watch rule.
func (e *Engine) AddWatchRule(rule autonomy.WatchRule) {
	e.Watch.AddRule(rule)
}
