// Package notify delivers cross-cutting alarms: SLA queue congestion,
// critical-approval escalations, and Summoner urgency auto-approve notices. A nil Notifier degrades
// silently; LogNotifier degrades to a log line.
package notify

import (
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/rs/zerolog"
)

// Notifier delivers a human-facing alert. Implementations must not block
// the caller for long or panic.
type Notifier interface {
	Alert(title, message string) error
}

// LogNotifier is the always-available fallback: it writes the alert as a
// warning through the component logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notify")}
}

// Alert logs title and message at warning level.
func (n *LogNotifier) Alert(title, message string) error {
	n.logger.Warn().Str("title", title).Msg(message)
	return nil
}
