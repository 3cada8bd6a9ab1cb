/*
Package log provides structured logging for the SwarmEngine core using
zerolog.

The package wraps zerolog to give every subsystem (bus, matcher, executor,
approval engine, ...) a component-scoped child logger while sharing one
global sink, configured once via Init.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("bus")
	logger.Info().Str("event_id", id).Msg("published")

Use WithEventID, WithAgentID, and WithTopic to extend a component logger
with the fields that show up across nearly every SwarmEngine log line,
instead of repeating .Str("event_id", ...) at each call site.

Never log payload contents that may carry secrets (skill manifest
permissions, approval decision reasons); log identifiers and let the audit
log carry the full record.
*/
package log
