// Package storage defines the durable-log interface the Event Bus and
// skill registry may optionally persist through. Persistence is an
// interface, not a requirement: MemStore is the default and BoltStore is
// an opt-in durable option built on bbolt.
package storage

import (
	"github.com/corpcraft/swarmengine/pkg/types"
)

// Store is the append-only persistence surface the bus and registry write
// through. Implementations need not support update-in-place for events;
// Put always overwrites the value for a key, matching the bus's own
// copy-on-write snapshot discipline.
type Store interface {
	PutEvent(e *types.Event) error
	GetEvent(id string) (*types.Event, error)
	ListEvents() ([]*types.Event, error)

	PutDeadLetter(entry *types.DeadLetterEntry) error
	ListDeadLetters() ([]*types.DeadLetterEntry, error)

	PutSkillManifest(m *types.SkillManifest) error
	GetSkillManifest(id string) (*types.SkillManifest, error)
	ListSkillManifests() ([]*types.SkillManifest, error)

	Close() error
}
