package perception

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/arsketch/pkg/sketch"
)

// Simulator is a deterministic in-memory Subsystem.
// Tracking, mapping and hit-test results are set explicitly; adopting a snapshot moves
// tracking to limited(relocalizing) the way a real tracker would.
// All methods are safe for concurrent use.
type Simulator struct {
	mu        sync.Mutex
	tracking  sketch.TrackingState
	mapping   sketch.MappingStatus
	anchors   []sketch.Anchor
	frame     []byte
	hit       *sketch.Transform
	thumbnail []byte

	adoptErr   error
	captureErr error

	adopted []sketch.MapSnapshot
	added   []sketch.Anchor
	resets  int
}

// NewSimulator creates a simulator that is initializing with nothing mapped.
func NewSimulator() *Simulator {
	return &Simulator{
		tracking:  sketch.Limited(sketch.ReasonInitializing),
		mapping:   sketch.MappingNotAvailable,
		thumbnail: []byte("thumbnail"),
	}
}

// SetTracking sets the tracking state reported by Tracking.
func (s *Simulator) SetTracking(t sketch.TrackingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = t
}

// SetMapping sets the mapping status reported by Mapping.
func (s *Simulator) SetMapping(m sketch.MappingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapping = m
}

// SetHit sets the transform returned by HitTestAtScreenCenter. A nil transform means
// the raycast misses.
func (s *Simulator) SetHit(t *sketch.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit = t
}

// SetFrame sets the opaque frame bytes included in captured snapshots.
func (s *Simulator) SetFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

// SetThumbnail sets the bytes returned by CaptureThumbnail.
func (s *Simulator) SetThumbnail(img []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbnail = img
}

// FailAdoption makes subsequent AdoptMapSnapshot calls return err. Pass nil to clear.
func (s *Simulator) FailAdoption(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptErr = err
}

// FailCapture makes subsequent CaptureMapSnapshot calls return err. Pass nil to clear.
func (s *Simulator) FailCapture(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureErr = err
}

func (s *Simulator) Tracking() sketch.TrackingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

func (s *Simulator) Mapping() sketch.MappingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping
}

func (s *Simulator) FrameAnchorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.anchors)
}

func (s *Simulator) CaptureMapSnapshot(ctx context.Context) (sketch.MapSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captureErr != nil {
		return sketch.MapSnapshot{}, s.captureErr
	}
	if !s.mapping.IsSaveable() {
		return sketch.MapSnapshot{}, fmt.Errorf("map not ready: mapping is %s", s.mapping)
	}

	anchors := make([]sketch.Anchor, len(s.anchors))
	copy(anchors, s.anchors)
	return sketch.MapSnapshot{Anchors: anchors, SourceFrame: s.frame}, nil
}

func (s *Simulator) CaptureThumbnail(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.thumbnail) == 0 {
		return nil, fmt.Errorf("can't take snapshot")
	}
	out := make([]byte, len(s.thumbnail))
	copy(out, s.thumbnail)
	return out, nil
}

func (s *Simulator) AdoptMapSnapshot(ctx context.Context, snap sketch.MapSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adoptErr != nil {
		return s.adoptErr
	}

	s.adopted = append(s.adopted, snap)
	s.anchors = append([]sketch.Anchor(nil), snap.Anchors...)
	s.frame = snap.SourceFrame
	s.tracking = sketch.Limited(sketch.ReasonRelocalizing)
	s.mapping = sketch.MappingNotAvailable
	return nil
}

func (s *Simulator) AddAnchor(anchor sketch.Anchor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors = append(s.anchors, anchor)
	s.added = append(s.added, anchor)
}

func (s *Simulator) HitTestAtScreenCenter() (sketch.Transform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hit == nil {
		return sketch.Transform{}, false
	}
	return *s.hit, true
}

func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors = nil
	s.frame = nil
	s.tracking = sketch.Limited(sketch.ReasonInitializing)
	s.mapping = sketch.MappingNotAvailable
	s.resets++
}

// Adopted returns every snapshot handed to AdoptMapSnapshot, oldest first.
func (s *Simulator) Adopted() []sketch.MapSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sketch.MapSnapshot(nil), s.adopted...)
}

// Added returns every anchor handed to AddAnchor since creation, oldest first.
func (s *Simulator) Added() []sketch.Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sketch.Anchor(nil), s.added...)
}

// Resets returns how many times Reset has been called.
func (s *Simulator) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

var _ Subsystem = (*Simulator)(nil)
