package syncengine

import (
	"context"
	"log"

	"github.com/dyluth/arsketch/internal/status"
	"github.com/dyluth/arsketch/pkg/sketch"
)

// Draw places an anchor at the screen-centre hit and sends it to all peers.
// Returns ErrNoHit if the raycast found no surface.
func (e *Engine) Draw(ctx context.Context, source, destination *sketch.Point3) (sketch.Anchor, error) {
	var a sketch.Anchor
	var opErr error
	if err := e.call(ctx, func() { a, opErr = e.draw(source, destination) }); err != nil {
		return sketch.Anchor{}, err
	}
	return a, opErr
}

// Share captures the current map with a thumbnail and sends it to all peers.
func (e *Engine) Share(ctx context.Context) error {
	var opErr error
	if err := e.call(ctx, func() { opErr = e.share(ctx) }); err != nil {
		return err
	}
	return opErr
}

// Save captures the current map with a thumbnail and persists it locally.
// Storage failures are returned as *PersistenceError.
func (e *Engine) Save(ctx context.Context) error {
	var opErr error
	if err := e.call(ctx, func() { opErr = e.save(ctx) }); err != nil {
		return err
	}
	return opErr
}

// Load adopts the locally saved map and starts relocalizing against it.
// The map authority is not changed by loading.
func (e *Engine) Load(ctx context.Context) error {
	var opErr error
	if err := e.call(ctx, func() { opErr = e.load(ctx) }); err != nil {
		return err
	}
	return opErr
}

// Reset discards the map authority, relocalization state and tracked anchors.
func (e *Engine) Reset(ctx context.Context) error {
	return e.call(ctx, e.reset)
}

// TrackingChanged reports a tracking state change from the perception subsystem.
func (e *Engine) TrackingChanged(ctx context.Context, t sketch.TrackingState) error {
	return e.call(ctx, func() { e.handleTracking(t) })
}

// State returns a copy of the current session state.
func (e *Engine) State(ctx context.Context) (State, error) {
	var st State
	if err := e.call(ctx, func() { st = e.snapshotState() }); err != nil {
		return State{}, err
	}
	return st, nil
}

// Report is the classified status plus the reference image when it should be shown.
type Report struct {
	status.Result
	Signals   status.Signals
	Thumbnail []byte
}

// Status observes the session and classifies it into a single message.
func (e *Engine) Status(ctx context.Context) (Report, error) {
	var r Report
	if err := e.call(ctx, func() { r = e.report(ctx) }); err != nil {
		return Report{}, err
	}
	return r, nil
}

func (e *Engine) report(ctx context.Context) Report {
	signals := e.signals(ctx)
	r := Report{Result: status.Classify(signals), Signals: signals}
	if r.ShowThumbnail {
		r.Thumbnail = append([]byte(nil), e.referenceImage...)
	}
	return r
}

// signals gathers the classifier inputs in one pass so a single evaluation sees a
// consistent view.
func (e *Engine) signals(ctx context.Context) status.Signals {
	hasSaved := false
	if e.store != nil {
		var err error
		if hasSaved, err = e.store.HasSnapshot(ctx); err != nil {
			log.Printf("[Sync] Failed to check saved snapshot: %v", err)
		}
	}

	return status.Signals{
		Tracking:      e.perception.Tracking(),
		Mapping:       e.perception.Mapping(),
		HasSavedMap:   hasSaved,
		Relocalizing:  e.relocalizing,
		Peers:         e.channel.ConnectedPeers(),
		MapAuthority:  e.mapAuthority,
		HasUserAnchor: len(e.anchorOrder) > 0,
		FrameAnchors:  e.perception.FrameAnchorCount(),
	}
}
