// Package registry implements the skill security gate and the asset
// registry it guards: frontmatter manifest parsing, trust-tier gating,
// and install/publish of ASSET_UPDATED events.
package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/corpcraft/swarmengine/pkg/types"
	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

type manifestYAML struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Version         string   `yaml:"version"`
	Tags            []string `yaml:"tags"`
	RiskLevel       string   `yaml:"risk_level"`
	FSRead          bool     `yaml:"fs_read"`
	FSWrite         bool     `yaml:"fs_write"`
	Network         bool     `yaml:"network"`
	Secrets         bool     `yaml:"secrets"`
	ExternalSend    bool     `yaml:"external_send"`
	ShellExec       bool     `yaml:"shell_exec"`
	Trust           string   `yaml:"trust"`
	StaticScanScore int      `yaml:"static_scan_score"`
	LastAuditAt     string   `yaml:"last_audit_at"`
	EntryPoint      string   `yaml:"entry_point"`
}

// ParseManifest reads a skill manifest's YAML frontmatter (the block
// between the two leading "---" lines of content) and derives
// its skill id from skillDir, the parent directory the file lives in.
func ParseManifest(skillDir string, content []byte) (*types.SkillManifest, error) {
	body, err := extractFrontmatter(content)
	if err != nil {
		return nil, err
	}

	var raw manifestYAML
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing skill manifest frontmatter: %w", err)
	}

	var lastAudit time.Time
	if raw.LastAuditAt != "" {
		lastAudit, err = time.Parse(time.RFC3339, raw.LastAuditAt)
		if err != nil {
			return nil, fmt.Errorf("parsing last_audit_at: %w", err)
		}
	}

	return &types.SkillManifest{
		SkillID:     DeriveSkillID(skillDir),
		Name:        raw.Name,
		Version:     raw.Version,
		Tags:        raw.Tags,
		Description: raw.Description,
		RiskLevel:   types.RiskLevel(raw.RiskLevel),
		Trust:       types.Trust(raw.Trust),
		Permissions: types.Permissions{
			FSRead:       raw.FSRead,
			FSWrite:      raw.FSWrite,
			Network:      raw.Network,
			Secrets:      raw.Secrets,
			ExternalSend: raw.ExternalSend,
			ShellExec:    raw.ShellExec,
		},
		StaticScanScore: raw.StaticScanScore,
		LastAuditAt:     lastAudit,
		EntryPoint:      raw.EntryPoint,
	}, nil
}

// DeriveSkillID lowercases the parent directory name and replaces
// whitespace runs with a single hyphen.
func DeriveSkillID(skillDir string) string {
	name := filepath.Base(skillDir)
	name = strings.ToLower(name)
	return strings.Join(strings.Fields(name), "-")
}

func extractFrontmatter(content []byte) ([]byte, error) {
	text := string(content)
	text = strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(text, frontmatterDelimiter) {
		return nil, fmt.Errorf("manifest missing opening %q delimiter", frontmatterDelimiter)
	}
	rest := text[len(frontmatterDelimiter):]
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		return nil, fmt.Errorf("manifest missing closing %q delimiter", frontmatterDelimiter)
	}
	return []byte(rest[:end]), nil
}
