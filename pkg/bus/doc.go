/*
Package bus implements the SwarmEngine Event Bus: a single-writer,
append-only blackboard with topic pub/sub, claim-lease concurrency
control, idempotency, a dead-letter queue, and replay.

	┌────────────────────────── EVENT BUS ───────────────────────────┐
	│                                                                  │
	│   Publish(event) ──► idempotency check (5 min TTL) ──► store    │
	│         │                                                        │
	│         ▼                                                        │
	│   subscribers[topic] invoked in registration order, sequentially │
	│   per event; a handler panic or error is caught and the event   │
	│   is routed to the DLQ instead of propagating                   │
	│                                                                  │
	│   Claim(event, agent) ──► first-writer-wins lease ──► lease      │
	│   timer scheduled; on expiry a non-terminal event resets to      │
	│   OPEN and TASK_RETRY_SCHEDULED is published                     │
	│                                                                  │
	└──────────────────────────────────────────────────────────────────┘

Mutation of an event's status/claim fields happens synchronously inside
Publish/Claim/Heartbeat/Release/Transition, before any subscriber runs —
Transition is what lets the Decomposer mark a root RESOLVING and have the
Matcher observe that state without a race.
*/
package bus
