// Package config collects the process-wide settings the engine reads at
// startup: the execution mode and agent working directory, each
// overridable by environment variable and, from the CLI, by flag.
package config

import "os"

// Config is the resolved set of startup settings.
type Config struct {
	ExecutionMode string
	WorkDir       string
}

// Load reads CORPCRAFT_EXECUTION_MODE and CORPCRAFT_WORK_DIR from the
// environment. Either may be empty; callers apply their own defaults.
func Load() Config {
	return Config{
		ExecutionMode: os.Getenv("CORPCRAFT_EXECUTION_MODE"),
		WorkDir:       os.Getenv("CORPCRAFT_WORK_DIR"),
	}
}
