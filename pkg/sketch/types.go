package sketch

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// PeerID identifies a device in a session. It doubles as the display name shown to users.
type PeerID string

// Point3 is a point in the shared map frame, in metres.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform is a rigid 4x4 transform stored column-major, matching the layout used by
// the perception subsystem.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a transform that only moves the origin to (x, y, z).
func Translation(x, y, z float64) Transform {
	t := Identity()
	t[12], t[13], t[14] = x, y, z
	return t
}

// Position returns the translation component of the transform.
func (t Transform) Position() Point3 {
	return Point3{X: t[12], Y: t[13], Z: t[14]}
}

func (t Transform) validate() error {
	for i, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("transform component %d is not finite", i)
		}
	}
	// Bottom row of a column-major affine matrix
	if t[3] != 0 || t[7] != 0 || t[11] != 0 || t[15] != 1 {
		return fmt.Errorf("transform bottom row must be [0 0 0 1], got [%g %g %g %g]", t[3], t[7], t[11], t[15])
	}
	return nil
}

// Anchor is a single placed point or segment in the shared map frame.
// Anchors are immutable once created and are only removed by a local reset or by
// adopting a new map snapshot.
type Anchor struct {
	ID          string    `json:"id"`                    // stroke-<device>-<seq>
	Transform   Transform `json:"transform"`             // Placement in the shared map frame
	Source      *Point3   `json:"source,omitempty"`      // Segment start, if this anchor renders as a line
	Destination *Point3   `json:"destination,omitempty"` // Segment end
	CreatedBy   PeerID    `json:"created_by,omitempty"`  // Originating device
}

// IsSegment reports whether the anchor carries both segment endpoints.
func (a Anchor) IsSegment() bool {
	return a.Source != nil && a.Destination != nil
}

// Validate checks if the Anchor has valid field values.
func (a Anchor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("anchor ID cannot be empty")
	}

	if err := a.Transform.validate(); err != nil {
		return fmt.Errorf("anchor %s: %w", a.ID, err)
	}

	for name, p := range map[string]*Point3{"source": a.Source, "destination": a.Destination} {
		if p == nil {
			continue
		}
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return fmt.Errorf("anchor %s: %s point is not finite", a.ID, name)
		}
	}

	return nil
}

// MapSnapshot is the full-state spatial reference exchanged between devices.
// A received snapshot fully replaces the local map; it is never merged.
type MapSnapshot struct {
	Anchors     []Anchor `json:"anchors"`                // Ordered; never contains the thumbnail
	Thumbnail   []byte   `json:"thumbnail,omitempty"`    // Image shown while relocalizing
	SourceFrame []byte   `json:"source_frame,omitempty"` // Opaque perception state
	CapturedBy  PeerID   `json:"captured_by,omitempty"`
}

// WithoutThumbnail returns a copy of the snapshot with the thumbnail removed.
// The anchor slice is copied so the result can be handed off safely.
func (s MapSnapshot) WithoutThumbnail() MapSnapshot {
	out := s
	out.Thumbnail = nil
	if s.Anchors != nil {
		out.Anchors = make([]Anchor, len(s.Anchors))
		copy(out.Anchors, s.Anchors)
	}
	return out
}

// Validate checks every anchor in the snapshot and rejects duplicate ids.
func (s MapSnapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Anchors))
	for i, a := range s.Anchors {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("invalid anchor at index %d: %w", i, err)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate anchor ID %q at index %d", a.ID, i)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// AnchorID builds the identifier for the seq-th stroke drawn by a device.
// Including the device keeps ids unique across peers that reuse sequence numbers.
func AnchorID(device PeerID, seq uint64) string {
	return fmt.Sprintf("stroke-%s-%d", device, seq)
}

// NewDeviceID returns a short random device identifier for devices without a
// configured name.
func NewDeviceID() PeerID {
	return PeerID("device-" + strings.SplitN(uuid.New().String(), "-", 2)[0])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
