package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")

	keyCurrent = []byte("current")
	keySavedAt = []byte("saved_at")
)

// BoltStore is a SnapshotStore backed by a BoltDB file.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the snapshot database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return fmt.Errorf("failed to create snapshots bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) SaveSnapshot(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("refusing to save empty snapshot payload")
	}

	savedAt := make([]byte, 8)
	binary.BigEndian.PutUint64(savedAt, uint64(s.now().UnixMilli()))

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return fmt.Errorf("snapshots bucket not found")
		}
		if err := bucket.Put(keyCurrent, payload); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		if err := bucket.Put(keySavedAt, savedAt); err != nil {
			return fmt.Errorf("failed to save snapshot timestamp: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var payload []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return fmt.Errorf("snapshots bucket not found")
		}
		data := bucket.Get(keyCurrent)
		if data == nil {
			return ErrNoSnapshot
		}
		// Bolt values are only valid for the life of the transaction
		payload = make([]byte, len(data))
		copy(payload, data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payload, nil
}

func (s *BoltStore) HasSnapshot(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return fmt.Errorf("snapshots bucket not found")
		}
		exists = bucket.Get(keyCurrent) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	return exists, nil
}

func (s *BoltStore) SavedAt(ctx context.Context) (time.Time, error) {
	var savedAt time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return fmt.Errorf("snapshots bucket not found")
		}
		data := bucket.Get(keySavedAt)
		if data == nil {
			return ErrNoSnapshot
		}
		savedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(data)))
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return savedAt, nil
}

var _ SnapshotStore = (*BoltStore)(nil)
