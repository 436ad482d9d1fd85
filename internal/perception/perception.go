// Package perception defines the boundary to the camera tracking and mapping subsystem.
//
// The sync engine never estimates poses or detects planes itself; it asks a Subsystem.
// Simulator is an in-memory implementation used by the CLI and by tests.
package perception

import (
	"context"

	"github.com/dyluth/arsketch/pkg/sketch"
)

// Subsystem is the perception collaborator consumed by the sync engine.
// Implementations must be safe to call from the engine's processing goroutine while
// their own callbacks run elsewhere.
type Subsystem interface {
	// Tracking returns the current camera tracking state.
	Tracking() sketch.TrackingState

	// Mapping returns how much of the environment is mapped.
	Mapping() sketch.MappingStatus

	// FrameAnchorCount returns the number of anchors of any kind in the current frame.
	FrameAnchorCount() int

	// CaptureMapSnapshot captures the current map without a thumbnail.
	CaptureMapSnapshot(ctx context.Context) (sketch.MapSnapshot, error)

	// CaptureThumbnail renders the current view as encoded image bytes.
	CaptureThumbnail(ctx context.Context) ([]byte, error)

	// AdoptMapSnapshot restarts tracking against the given map. Existing anchors are
	// replaced by the snapshot's anchors.
	AdoptMapSnapshot(ctx context.Context, snap sketch.MapSnapshot) error

	// AddAnchor places an anchor in the current map.
	AddAnchor(anchor sketch.Anchor)

	// HitTestAtScreenCenter raycasts from the screen centre against detected surfaces.
	HitTestAtScreenCenter() (sketch.Transform, bool)

	// Reset restarts tracking with an empty map.
	Reset()
}
