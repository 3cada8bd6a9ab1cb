// Package types defines the data model shared by every SwarmEngine
// subsystem: Event, Claim, Agent, SkillManifest, ApprovalRecord, HUDState,
// SummonRequest and DeadLetterEntry. The Event Bus owns all Event and
// Claim values; every other package treats them as read-only snapshots and
// mutates state only by publishing new events.
package types
