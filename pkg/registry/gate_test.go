package registry

import (
	"testing"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
)

func manifestWith(trust types.Trust, score int, perms types.Permissions) *types.SkillManifest {
	return &types.SkillManifest{
		SkillID:         "test-skill",
		Trust:           trust,
		StaticScanScore: score,
		Permissions:     perms,
	}
}

func TestGateAllowsOfficial(t *testing.T) {
	g := NewGate(nil, nil)
	result := g.Evaluate(manifestWith(types.TrustOfficial, 0, types.Permissions{ShellExec: true}))
	assert.Equal(t, GateAllow, result.Decision)
}

func TestGateRejectsUntrusted(t *testing.T) {
	g := NewGate(nil, nil)
	result := g.Evaluate(manifestWith(types.TrustUntrusted, 100, types.Permissions{}))
	assert.Equal(t, GateReject, result.Decision)
}

func TestGateInternalSignedRequiresValidSignature(t *testing.T) {
	g := NewGate(func(*types.SkillManifest) bool { return true }, nil)
	result := g.Evaluate(manifestWith(types.TrustInternalSigned, 0, types.Permissions{}))
	assert.Equal(t, GateAllow, result.Decision)

	g2 := NewGate(nil, nil)
	result2 := g2.Evaluate(manifestWith(types.TrustInternalSigned, 0, types.Permissions{}))
	assert.Equal(t, GateReject, result2.Decision)
}

func TestGateThirdPartyBelowScanFloorRejects(t *testing.T) {
	g := NewGate(nil, nil)
	result := g.Evaluate(manifestWith(types.TrustThirdParty, 70, types.Permissions{}))
	assert.Equal(t, GateReject, result.Decision)
}

func TestGateThirdPartyLowRiskAllows(t *testing.T) {
	g := NewGate(nil, nil)
	result := g.Evaluate(manifestWith(types.TrustThirdParty, 95, types.Permissions{FSRead: true}))
	assert.Equal(t, GateAllow, result.Decision)
}

func TestGateThirdPartyHighRiskRequiresApprovalUnlessAllowlisted(t *testing.T) {
	g := NewGate(nil, nil)
	result := g.Evaluate(manifestWith(types.TrustThirdParty, 95, types.Permissions{ShellExec: true}))
	assert.Equal(t, GateRequiresApproval, result.Decision)

	allowed := NewGate(nil, []string{"test-skill"})
	result2 := allowed.Evaluate(manifestWith(types.TrustThirdParty, 95, types.Permissions{ShellExec: true}))
	assert.Equal(t, GateAllow, result2.Decision)
}
