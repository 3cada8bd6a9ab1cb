package policy

import (
	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// Sandbox and TokenRevoker are the abstract capabilities the Emergency
// Measures Protocol cascade exercises for its first two actions. Both
// default to no-op stand-ins; a real deployment supplies concrete
// implementations.
type Sandbox interface {
	Terminate(agentID string) error
}

type TokenRevoker interface {
	Revoke(agentID string) error
}

// NoopSandbox and NoopTokenRevoker are the zero-value defaults.
type NoopSandbox struct{}

func (NoopSandbox) Terminate(agentID string) error { return nil }

type NoopTokenRevoker struct{}

func (NoopTokenRevoker) Revoke(agentID string) error { return nil }

// EMPHandler runs the Emergency Measures Protocol cascade whenever an
// approval is rejected: terminate the agent's sandbox, revoke its tokens,
// generate an evidence pack, and fail the task.
type EMPHandler struct {
	bus     *bus.Bus
	sandbox Sandbox
	tokens  TokenRevoker
	logger  zerolog.Logger
}

// NewEMPHandler creates an EMPHandler subscribed to APPROVAL_DECISION.
// sandbox and tokens may be nil, in which case no-op stand-ins are used.
func NewEMPHandler(b *bus.Bus, sandbox Sandbox, tokens TokenRevoker) *EMPHandler {
	if sandbox == nil {
		sandbox = NoopSandbox{}
	}
	if tokens == nil {
		tokens = NoopTokenRevoker{}
	}
	h := &EMPHandler{bus: b, sandbox: sandbox, tokens: tokens, logger: log.WithComponent("emp")}
	b.Subscribe([]types.Topic{types.TopicApprovalDecision}, h.handle)
	return h
}

func (h *EMPHandler) handle(event *types.Event) error {
	decision, _ := event.Payload["decision"].(string)
	if decision != "REJECT" {
		return nil
	}
	eventID, _ := event.Payload["event_id"].(string)
	if eventID == "" {
		return nil
	}

	task, err := h.bus.GetEvent(eventID)
	if err != nil {
		return nil
	}

	agentID := task.ClaimedBy

	actions := make([]string, 0, 3)

	if err := h.sandbox.Terminate(agentID); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("sandbox termination failed")
	} else {
		actions = append(actions, "SANDBOX_TERMINATED")
	}

	if err := h.tokens.Revoke(agentID); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("token revocation failed")
	} else {
		actions = append(actions, "TOKENS_REVOKED")
	}

	evidencePackID := generateEvidencePackID(eventID)
	actions = append(actions, "TASK_FAILED")

	h.logger.Warn().Str("event_id", eventID).Str("agent_id", agentID).Strs("actions", actions).Msg("EMP cascade executed")

	if cerr := h.bus.CloseEvent(eventID, types.EventFailed, task.CostDelta); cerr != nil {
		h.logger.Error().Err(cerr).Str("event_id", eventID).Msg("failed to close event after EMP")
	}

	_, err = h.bus.Publish(&types.Event{
		Topic: types.TopicTaskFailed,
		Payload: map[string]any{
			"event_id":         eventID,
			"agent_id":         agentID,
			"reason":           "rejected by approval, EMP triggered",
			"category":         "POLICY",
			"emp_actions":      actions,
			"evidence_pack_id": evidencePackID,
		},
	})
	return err
}

// generateEvidencePackID derives a deterministic evidence-pack identifier
// for an EMP cascade, since no external artifact store is in scope.
func generateEvidencePackID(eventID string) string {
	return "evidence-" + eventID
}
