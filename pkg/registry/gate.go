package registry

import "github.com/corpcraft/swarmengine/pkg/types"

const thirdPartyScanFloor = 80

// SignatureVerifier checks an INTERNAL_SIGNED manifest's signature. A real
// deployment supplies a cryptographic implementation; the gate only calls
// the hook.
type SignatureVerifier func(manifest *types.SkillManifest) bool

// GateDecision is the recorded outcome of a gate evaluation.
type GateDecision string

const (
	GateAllow            GateDecision = "ALLOW"
	GateReject           GateDecision = "REJECT"
	GateRequiresApproval GateDecision = "REQUIRES_APPROVAL"
)

// GateResult is what InstallSkill needs to decide whether to persist a
// manifest or route it to a human.
type GateResult struct {
	Decision GateDecision
	Reason   string
}

// Gate evaluates skill manifests against their trust tier before install.
type Gate struct {
	verifySignature SignatureVerifier
	allowlist       map[string]bool
}

// NewGate creates a Gate. verify may be nil, in which case every
// INTERNAL_SIGNED manifest is rejected (fail closed). allowlist names
// skill ids pre-cleared for the THIRD_PARTY high-risk-permission path.
func NewGate(verify SignatureVerifier, allowlist []string) *Gate {
	set := make(map[string]bool, len(allowlist))
	for _, id := range allowlist {
		set[id] = true
	}
	if verify == nil {
		verify = func(*types.SkillManifest) bool { return false }
	}
	return &Gate{verifySignature: verify, allowlist: set}
}

// Evaluate runs manifest through the trust-tier decision tree.
func (g *Gate) Evaluate(manifest *types.SkillManifest) GateResult {
	switch manifest.Trust {
	case types.TrustOfficial:
		return GateResult{Decision: GateAllow, Reason: "official"}

	case types.TrustInternalSigned:
		if g.verifySignature(manifest) {
			return GateResult{Decision: GateAllow, Reason: "signature verified"}
		}
		return GateResult{Decision: GateReject, Reason: "signature verification failed"}

	case types.TrustUntrusted:
		return GateResult{Decision: GateReject, Reason: "untrusted provenance"}

	case types.TrustThirdParty:
		if manifest.StaticScanScore < thirdPartyScanFloor {
			return GateResult{Decision: GateReject, Reason: "static scan score below threshold"}
		}
		if !manifest.Permissions.HighRisk() {
			return GateResult{Decision: GateAllow, Reason: "low-risk third-party skill"}
		}
		if g.allowlist[manifest.SkillID] {
			return GateResult{Decision: GateAllow, Reason: "allowlisted"}
		}
		return GateResult{Decision: GateRequiresApproval, Reason: "high-risk permission, not allowlisted"}

	default:
		return GateResult{Decision: GateReject, Reason: "unknown trust tier"}
	}
}
