// Package errs collects the sentinel errors shared across the SwarmEngine
// core so callers can compare with errors.Is instead of matching strings.
package errs

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrLeaseExpired   = errors.New("lease expired")
	ErrTerminal       = errors.New("event is terminal")
	ErrNotClaimed     = errors.New("event not claimed")
	ErrWrongClaimant  = errors.New("claim held by another agent")
)
