// Package policy implements the approval engine and its tiered SLA
// monitor, the Emergency Measures Protocol cascade triggered by a
// rejection, and the append-only audit log.
package policy
