// Package swarm implements the task coordination pipeline: intent
// routing, analysis, decomposition, matching, execution, recovery, budget
// tracking and summoning.
package swarm

import "sync/atomic"

// ExecutionMode is the process-wide runtime mode. The Decomposer only
// fans a task out into sub-tasks in "team" mode.
type ExecutionMode int32

const (
	ModeMock ExecutionMode = iota
	ModeClaude
	ModeTeam
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeMock:
		return "mock"
	case ModeClaude:
		return "claude"
	case ModeTeam:
		return "team"
	default:
		return "unknown"
	}
}

// ParseExecutionMode maps CORPCRAFT_EXECUTION_MODE values to ExecutionMode.
func ParseExecutionMode(s string) (ExecutionMode, bool) {
	switch s {
	case "mock":
		return ModeMock, true
	case "claude":
		return ModeClaude, true
	case "team":
		return ModeTeam, true
	default:
		return ModeMock, false
	}
}

var currentMode atomic.Int32

func init() {
	currentMode.Store(int32(ModeMock))
}

// SetExecutionMode changes the process-wide mode.
func SetExecutionMode(m ExecutionMode) {
	currentMode.Store(int32(m))
}

// GetExecutionMode returns the process-wide mode.
func GetExecutionMode() ExecutionMode {
	return ExecutionMode(currentMode.Load())
}

// autonomyLevel gates how much the Summoner is allowed to decide on its
// own: 0/1 always ask a human, 2 auto-approves LOW/MEDIUM urgency, 3
// auto-approves everything.
var autonomyLevel atomic.Int32

// SetAutonomyLevel changes the process-wide autonomy gate.
func SetAutonomyLevel(level int) {
	autonomyLevel.Store(int32(level))
}

// GetAutonomyLevel returns the process-wide autonomy gate.
func GetAutonomyLevel() int {
	return int(autonomyLevel.Load())
}
