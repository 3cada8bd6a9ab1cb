package registry

import (
	"testing"

	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `---
name: csv-importer
description: imports CSV rows into the task queue
version: "1.2.0"
tags: [data, import]
risk_level: MEDIUM
fs_read: true
fs_write: false
network: false
secrets: false
external_send: false
shell_exec: false
trust: THIRD_PARTY
static_scan_score: 91
last_audit_at: "2026-01-15T00:00:00Z"
entry_point: main.go
---

# csv-importer

Body text is ignored by the parser.
`

func TestParseManifestExtractsFrontmatter(t *testing.T) {
	m, err := ParseManifest("/skills/CSV Importer", []byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "csv-importer", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, types.TrustThirdParty, m.Trust)
	assert.Equal(t, 91, m.StaticScanScore)
	assert.False(t, m.Permissions.HighRisk())
	assert.Equal(t, "csv-importer", m.SkillID)
	assert.False(t, m.LastAuditAt.IsZero())
}

func TestParseManifestMissingDelimiterErrors(t *testing.T) {
	_, err := ParseManifest("/skills/broken", []byte("no frontmatter here"))
	assert.Error(t, err)
}

func TestDeriveSkillIDLowercasesAndHyphenates(t *testing.T) {
	assert.Equal(t, "my-cool-skill", DeriveSkillID("/skills/My  Cool Skill"))
}
