package syncengine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/arsketch/internal/peer"
	"github.com/dyluth/arsketch/pkg/sketch"
)

// Every method in this file runs on the processing goroutine.

// phase derives the hand-off phase from the current fields.
func (e *Engine) phase() Phase {
	switch {
	case e.relocalizing:
		return PhaseAwaitingRelocalization
	case e.mapAuthority != "":
		return PhaseSynced
	case len(e.channel.ConnectedPeers()) > 0:
		return PhaseConnected
	default:
		return PhaseIdle
	}
}

// handleInbound decodes a peer payload and applies the snapshot or anchor rules.
// The returned error is informational; the caller has nobody to report it to.
func (e *Engine) handleInbound(ctx context.Context, in peer.Inbound) error {
	msg, err := sketch.Decode(in.Payload)
	if err != nil {
		e.stats.DecodeFailures++
		log.Printf("[Sync] Can't decode data received from %s: %v", in.From, err)
		return err
	}

	switch msg.Kind {
	case sketch.KindSnapshot:
		if err := e.adoptSnapshot(ctx, *msg.Snapshot, in.From); err != nil {
			log.Printf("[Sync] %v", err)
			return err
		}
	case sketch.KindAnchor:
		e.applyRemoteAnchor(*msg.Anchor, in.From)
	}
	return nil
}

// adoptSnapshot hands a snapshot to perception and, on success, replaces the local map.
// source is the sending peer, or empty for a snapshot loaded from local storage; only
// received snapshots change the map authority.
func (e *Engine) adoptSnapshot(ctx context.Context, snap sketch.MapSnapshot, source sketch.PeerID) error {
	thumbnail := snap.Thumbnail
	stripped := snap.WithoutThumbnail()

	if err := e.perception.AdoptMapSnapshot(ctx, stripped); err != nil {
		e.stats.AdoptionFailures++
		return &AdoptionError{Source: source, Err: err}
	}

	if thumbnail == nil {
		log.Printf("[Sync] No snapshot image in map from %s", describeSource(source))
	}
	e.referenceImage = thumbnail
	if source != "" {
		e.mapAuthority = source
	}
	e.relocalizing = true
	e.generation++
	e.replaceAnchors(stripped.Anchors)
	e.stats.SnapshotsAdopted++
	e.armWatchdog()

	e.logEvent("snapshot_adopted", map[string]interface{}{
		"source":        describeSource(source),
		"map_authority": string(e.mapAuthority),
		"anchors":       len(stripped.Anchors),
		"phase":         string(e.phase()),
	})
	return nil
}

// applyRemoteAnchor adds a peer's anchor unless relocalizing or already known.
func (e *Engine) applyRemoteAnchor(a sketch.Anchor, from sketch.PeerID) {
	if e.relocalizing {
		e.stats.AnchorsDropped++
		log.Printf("[Sync] Dropping anchor %s from %s while relocalizing", a.ID, from)
		return
	}

	if e.hasAnchor(a.ID) {
		e.stats.DuplicatesIgnored++
		log.Printf("[Sync] Ignoring duplicate anchor %s from %s", a.ID, from)
		return
	}

	e.perception.AddAnchor(a)
	e.trackAnchor(a.ID)
	e.stats.AnchorsApplied++
}

// handleTracking ends relocalization once tracking is back to normal.
func (e *Engine) handleTracking(t sketch.TrackingState) {
	if !e.relocalizing || !t.IsNormal() {
		return
	}

	e.relocalizing = false
	e.logEvent("relocalized", map[string]interface{}{
		"map_authority": string(e.mapAuthority),
		"phase":         string(e.phase()),
	})
}

// draw places a new local anchor at the hit-test result and queues it for peers.
func (e *Engine) draw(source, destination *sketch.Point3) (sketch.Anchor, error) {
	transform, ok := e.perception.HitTestAtScreenCenter()
	if !ok {
		return sketch.Anchor{}, ErrNoHit
	}

	// A loaded or adopted map may already hold strokes this device drew in an earlier run
	id := sketch.AnchorID(e.self, e.seq)
	for e.hasAnchor(id) {
		e.seq++
		id = sketch.AnchorID(e.self, e.seq)
	}

	a := sketch.Anchor{
		ID:          id,
		Transform:   transform,
		Source:      source,
		Destination: destination,
		CreatedBy:   e.self,
	}

	payload, err := sketch.EncodeAnchor(a)
	if err != nil {
		return sketch.Anchor{}, fmt.Errorf("failed to encode anchor: %w", err)
	}

	e.seq++
	e.perception.AddAnchor(a)
	e.trackAnchor(a.ID)
	e.stats.AnchorsDrawn++
	e.enqueue(payload)
	return a, nil
}

// captureForHandOff captures the current map and attaches a fresh thumbnail.
func (e *Engine) captureForHandOff(ctx context.Context) (sketch.MapSnapshot, error) {
	snap, err := e.perception.CaptureMapSnapshot(ctx)
	if err != nil {
		return sketch.MapSnapshot{}, fmt.Errorf("can't get current world map: %w", err)
	}

	thumbnail, err := e.perception.CaptureThumbnail(ctx)
	if err != nil {
		return sketch.MapSnapshot{}, fmt.Errorf("can't take snapshot: %w", err)
	}

	snap.Thumbnail = thumbnail
	snap.CapturedBy = e.self
	return snap, nil
}

// share sends the current map to every connected peer.
func (e *Engine) share(ctx context.Context) error {
	snap, err := e.captureForHandOff(ctx)
	if err != nil {
		return err
	}

	payload, err := sketch.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("can't encode map: %w", err)
	}

	e.enqueue(payload)
	e.logEvent("snapshot_shared", map[string]interface{}{
		"anchors": len(snap.Anchors),
		"peers":   len(e.channel.ConnectedPeers()),
		"bytes":   len(payload),
	})
	return nil
}

// save persists the current map locally.
func (e *Engine) save(ctx context.Context) error {
	if e.store == nil {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("no snapshot store configured")}
	}

	snap, err := e.captureForHandOff(ctx)
	if err != nil {
		return err
	}

	payload, err := sketch.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("can't encode map: %w", err)
	}

	if err := e.store.SaveSnapshot(ctx, payload); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	e.logEvent("snapshot_saved", map[string]interface{}{
		"anchors": len(snap.Anchors),
		"bytes":   len(payload),
	})
	return nil
}

// load adopts the locally saved map.
func (e *Engine) load(ctx context.Context) error {
	if e.store == nil {
		return &PersistenceError{Op: "load", Err: fmt.Errorf("no snapshot store configured")}
	}

	payload, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}

	msg, err := sketch.Decode(payload)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	if msg.Kind != sketch.KindSnapshot {
		return &PersistenceError{Op: "load", Err: fmt.Errorf("saved payload is an %s, not a snapshot", msg.Kind)}
	}

	return e.adoptSnapshot(ctx, *msg.Snapshot, "")
}

// reset unconditionally discards the session state. It does not wait for perception
// to confirm anything.
func (e *Engine) reset() {
	e.perception.Reset()
	e.mapAuthority = ""
	e.relocalizing = false
	e.generation++
	e.referenceImage = nil
	e.anchorIDs = make(map[string]struct{})
	e.anchorOrder = nil

	e.logEvent("session_reset", map[string]interface{}{
		"phase": string(e.phase()),
	})
}

// armWatchdog schedules a forced end of the current relocalization, if configured.
func (e *Engine) armWatchdog() {
	if e.opts.RelocalizationTimeout <= 0 {
		return
	}

	gen := e.generation
	time.AfterFunc(e.opts.RelocalizationTimeout, func() {
		e.post(func() { e.expireRelocalization(gen) })
	})
}

// expireRelocalization ends relocalization if the generation that armed the watchdog
// is still current.
func (e *Engine) expireRelocalization(gen uint64) {
	if !e.relocalizing || e.generation != gen {
		return
	}

	e.relocalizing = false
	e.logEvent("relocalization_timeout", map[string]interface{}{
		"timeout_ms":    e.opts.RelocalizationTimeout.Milliseconds(),
		"map_authority": string(e.mapAuthority),
	})
}

func (e *Engine) hasAnchor(id string) bool {
	_, ok := e.anchorIDs[id]
	return ok
}

func (e *Engine) trackAnchor(id string) {
	e.anchorIDs[id] = struct{}{}
	e.anchorOrder = append(e.anchorOrder, id)
}

func (e *Engine) replaceAnchors(anchors []sketch.Anchor) {
	e.anchorIDs = make(map[string]struct{}, len(anchors))
	e.anchorOrder = make([]string, 0, len(anchors))
	for _, a := range anchors {
		e.trackAnchor(a.ID)
	}
}

func (e *Engine) snapshotState() State {
	stats := e.stats
	stats.PayloadsSent = e.payloadsSent.Load()
	stats.SendFailures = e.sendFailures.Load()
	stats.OutboxDrops = e.outboxDrops.Load()

	return State{
		Phase:          e.phase(),
		MapAuthority:   e.mapAuthority,
		Relocalizing:   e.relocalizing,
		Anchors:        append([]string(nil), e.anchorOrder...),
		Peers:          e.channel.ConnectedPeers(),
		ReferenceImage: append([]byte(nil), e.referenceImage...),
		NextSeq:        e.seq,
		Stats:          stats,
	}
}

func describeSource(source sketch.PeerID) string {
	if source == "" {
		return "local storage"
	}
	return string(source)
}
