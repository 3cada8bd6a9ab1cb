package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/corpcraft/swarmengine/pkg/errs"
	"github.com/corpcraft/swarmengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEvents    = []byte("events")
	bucketDLQ       = []byte("dead_letters")
	bucketManifests = []byte("skill_manifests")
)

// BoltStore is the durable option for Store, backed by bbolt. Callers that
// don't need a crash-durable event log can use MemStore instead; nothing
// else in the engine depends on which is configured.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "swarmengine.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketDLQ, bucketManifests} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) PutEvent(e *types.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEvents).Put([]byte(e.EventID), data)
	})
}

func (s *BoltStore) GetEvent(id string) (*types.Event, error) {
	var e types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEvents).Get([]byte(id))
		if data == nil {
			return errs.ErrNotFound
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *BoltStore) ListEvents() ([]*types.Event, error) {
	var out []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(_, v []byte) error {
			var e types.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) PutDeadLetter(entry *types.DeadLetterEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDLQ).Put([]byte(entry.RecordedAt.Format("20060102150405.000000000")+":"+entry.Event.EventID), data)
	})
}

func (s *BoltStore) ListDeadLetters() ([]*types.DeadLetterEntry, error) {
	var out []*types.DeadLetterEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDLQ).ForEach(func(_, v []byte) error {
			var entry types.DeadLetterEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, &entry)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) PutSkillManifest(m *types.SkillManifest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketManifests).Put([]byte(m.SkillID), data)
	})
}

func (s *BoltStore) GetSkillManifest(id string) (*types.SkillManifest, error) {
	var m types.SkillManifest
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketManifests).Get([]byte(id))
		if data == nil {
			return errs.ErrNotFound
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) ListSkillManifests() ([]*types.SkillManifest, error) {
	var out []*types.SkillManifest
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketManifests).ForEach(func(_, v []byte) error {
			var m types.SkillManifest
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, &m)
			return nil
		})
	})
	return out, err
}
