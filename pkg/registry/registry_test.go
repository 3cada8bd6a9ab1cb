package registry

import (
	"testing"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *bus.Bus {
	return bus.New(storage.NewMemStore())
}

const officialManifest = `---
name: log-summarizer
version: "1.0.0"
risk_level: LOW
trust: OFFICIAL
---
`

const untrustedManifest = `---
name: sketchy-tool
version: "0.1.0"
risk_level: HIGH
trust: UNTRUSTED
---
`

const thirdPartyHighRisk = `---
name: shell-runner
version: "0.2.0"
risk_level: HIGH
trust: THIRD_PARTY
static_scan_score: 95
shell_exec: true
---
`

func TestInstallSkillAllowsOfficialAndPublishesAssetUpdated(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	store := storage.NewMemStore()
	reg := NewRegistry(b, store, NewGate(nil, nil))

	var updated []*types.Event
	b.Subscribe([]types.Topic{types.TopicAssetUpdated}, func(e *types.Event) error {
		updated = append(updated, e)
		return nil
	})

	result, err := reg.InstallSkill("/skills/log-summarizer", []byte(officialManifest))
	require.NoError(t, err)
	assert.Equal(t, GateAllow, result.Decision)
	require.Len(t, updated, 1)

	stored, err := reg.GetSkill("log-summarizer")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", stored.Version)
}

func TestInstallSkillQuarantinesUntrusted(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	reg := NewRegistry(b, storage.NewMemStore(), NewGate(nil, nil))

	var quarantined []*types.Event
	b.Subscribe([]types.Topic{types.TopicSkillQuarantined}, func(e *types.Event) error {
		quarantined = append(quarantined, e)
		return nil
	})

	result, err := reg.InstallSkill("/skills/sketchy-tool", []byte(untrustedManifest))
	require.NoError(t, err)
	assert.Equal(t, GateReject, result.Decision)
	require.Len(t, quarantined, 1)

	_, err = reg.GetSkill("sketchy-tool")
	assert.Error(t, err)
}

func TestInstallSkillRequiresApprovalForHighRiskThirdParty(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	reg := NewRegistry(b, storage.NewMemStore(), NewGate(nil, nil))

	var required []*types.Event
	b.Subscribe([]types.Topic{types.TopicApprovalRequired}, func(e *types.Event) error {
		required = append(required, e)
		return nil
	})

	result, err := reg.InstallSkill("/skills/shell-runner", []byte(thirdPartyHighRisk))
	require.NoError(t, err)
	assert.Equal(t, GateRequiresApproval, result.Decision)
	require.Len(t, required, 1)

	_, err = reg.GetSkill("shell-runner")
	assert.Error(t, err)
}
