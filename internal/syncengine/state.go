package syncengine

import (
	"errors"
	"fmt"

	"github.com/dyluth/arsketch/pkg/sketch"
)

// Phase is the hand-off state of the session. It is derived from the engine's fields
// rather than stored.
type Phase string

const (
	// PhaseIdle means no map authority and no peers
	PhaseIdle Phase = "idle"

	// PhaseConnected means peers are present but no snapshot has been received
	PhaseConnected Phase = "connected"

	// PhaseAwaitingRelocalization means a snapshot was adopted and tracking has not recovered
	PhaseAwaitingRelocalization Phase = "awaiting_relocalization"

	// PhaseSynced means tracking recovered against the authority's map
	PhaseSynced Phase = "synced"
)

// State is a point-in-time copy of the engine's session state.
type State struct {
	Phase          Phase
	MapAuthority   sketch.PeerID
	Relocalizing   bool
	Anchors        []string // Tracked anchor ids in the order they were added
	Peers          []sketch.PeerID
	ReferenceImage []byte // Thumbnail of the last adopted snapshot
	NextSeq        uint64
	Stats          Stats
}

// Stats counts what the engine did with inbound and outbound traffic.
type Stats struct {
	AnchorsDrawn      int
	AnchorsApplied    int
	AnchorsDropped    int // Discarded while relocalizing
	DuplicatesIgnored int
	DecodeFailures    int
	SnapshotsAdopted  int
	AdoptionFailures  int
	PayloadsSent      int64
	SendFailures      int64
	OutboxDrops       int64
}

var (
	// ErrNoHit indicates the draw gesture's raycast did not hit a surface
	ErrNoHit = errors.New("hit test found no surface")

	// ErrEngineStopped indicates the engine's processing loop is no longer running
	ErrEngineStopped = errors.New("sync engine stopped")
)

// AdoptionError reports that the perception subsystem rejected a map snapshot.
// The engine state is unchanged when this is returned.
type AdoptionError struct {
	Source sketch.PeerID // Empty for snapshots loaded from local storage
	Err    error
}

func (e *AdoptionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to adopt saved map snapshot: %v", e.Err)
	}
	return fmt.Sprintf("failed to adopt map snapshot from %s: %v", e.Source, e.Err)
}

func (e *AdoptionError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed save or load of the local snapshot.
type PersistenceError struct {
	Op  string // "save" or "load"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s map snapshot: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
