package registry

import (
	"fmt"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

// Registry is the asset registry the Skill Security Gate guards: it
// parses candidate skill manifests, evaluates them against the gate, and
// persists anything allowed.
type Registry struct {
	bus    *bus.Bus
	store  storage.Store
	gate   *Gate
	logger zerolog.Logger
}

// NewRegistry wires a Registry against store for persistence and gate for
// trust-tier decisions.
func NewRegistry(b *bus.Bus, store storage.Store, gate *Gate) *Registry {
	return &Registry{bus: b, store: store, gate: gate, logger: log.WithComponent("registry")}
}

// InstallResult reports what InstallSkill decided for a candidate
// manifest.
type InstallResult struct {
	Decision GateDecision
	Reason   string
	Manifest *types.SkillManifest
}

// InstallSkill parses content as a skill manifest rooted at skillDir and
// runs it through the gate. An ALLOW persists the manifest and publishes
// ASSET_UPDATED; a REJECT publishes SKILL_QUARANTINED instead; a
// REQUIRES_APPROVAL persists nothing and leaves the decision to a human
// via the approval flow.
func (r *Registry) InstallSkill(skillDir string, content []byte) (*InstallResult, error) {
	manifest, err := ParseManifest(skillDir, content)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	decision := r.gate.Evaluate(manifest)

	switch decision.Decision {
	case GateAllow:
		if err := r.store.PutSkillManifest(manifest); err != nil {
			return nil, fmt.Errorf("persisting skill manifest: %w", err)
		}
		_, err := r.bus.Publish(&types.Event{
			Topic: types.TopicAssetUpdated,
			Payload: map[string]any{
				"skill_id": manifest.SkillID,
				"version":  manifest.Version,
				"trust":    string(manifest.Trust),
				"reason":   decision.Reason,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("publishing ASSET_UPDATED: %w", err)
		}
		r.logger.Info().Str("skill_id", manifest.SkillID).Msg("skill installed")

	case GateReject:
		_, err := r.bus.Publish(&types.Event{
			Topic: types.TopicSkillQuarantined,
			Payload: map[string]any{
				"skill_id": manifest.SkillID,
				"trust":    string(manifest.Trust),
				"reason":   decision.Reason,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("publishing SKILL_QUARANTINED: %w", err)
		}
		r.logger.Warn().Str("skill_id", manifest.SkillID).Str("reason", decision.Reason).Msg("skill quarantined")

	case GateRequiresApproval:
		_, err := r.bus.Publish(&types.Event{
			Topic: types.TopicApprovalRequired,
			Payload: map[string]any{
				"event_id":   manifest.SkillID,
				"risk_level": string(manifest.RiskLevel),
				"kind":       "SKILL_INSTALL",
				"reason":     decision.Reason,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("publishing APPROVAL_REQUIRED: %w", err)
		}
		r.logger.Info().Str("skill_id", manifest.SkillID).Msg("skill install requires approval")
	}

	return &InstallResult{Decision: decision.Decision, Reason: decision.Reason, Manifest: manifest}, nil
}

// GetSkill returns a previously installed manifest.
func (r *Registry) GetSkill(skillID string) (*types.SkillManifest, error) {
	return r.store.GetSkillManifest(skillID)
}

// ListSkills returns every installed manifest.
func (r *Registry) ListSkills() ([]*types.SkillManifest, error) {
	return r.store.ListSkillManifests()
}
