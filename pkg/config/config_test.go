package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CORPCRAFT_EXECUTION_MODE", "team")
	t.Setenv("CORPCRAFT_WORK_DIR", "/tmp/swarm")

	cfg := Load()
	assert.Equal(t, "team", cfg.ExecutionMode)
	assert.Equal(t, "/tmp/swarm", cfg.WorkDir)
}

func TestLoadDefaultsToEmpty(t *testing.T) {
	t.Setenv("CORPCRAFT_EXECUTION_MODE", "")
	t.Setenv("CORPCRAFT_WORK_DIR", "")

	cfg := Load()
	assert.Empty(t, cfg.ExecutionMode)
	assert.Empty(t, cfg.WorkDir)
}
