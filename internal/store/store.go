// Package store persists the locally saved map snapshot.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoSnapshot indicates that no snapshot has been saved yet
var ErrNoSnapshot = errors.New("no saved snapshot")

// SnapshotStore persists encoded snapshot payloads.
// Only the most recent save is kept; saving replaces it.
type SnapshotStore interface {
	// LoadSnapshot returns the saved payload or ErrNoSnapshot.
	LoadSnapshot(ctx context.Context) ([]byte, error)

	// SaveSnapshot replaces the saved payload.
	SaveSnapshot(ctx context.Context, payload []byte) error

	// HasSnapshot reports whether a payload has been saved.
	HasSnapshot(ctx context.Context) (bool, error)

	// SavedAt returns when the payload was saved, or ErrNoSnapshot.
	SavedAt(ctx context.Context) (time.Time, error)
}
