// Package sketch provides the shared data model and wire codec for collaborative
// map-anchored sketching.
//
// # Overview
//
// Several devices build one sketch on top of a single spatial map. One device's map
// becomes the reference frame for everyone; strokes are exchanged as small anchor deltas
// while full map snapshots are exchanged whole.
//
// # Core Concepts
//
// Anchors are the atomic unit of the sketch. Each anchor carries a rigid transform in the
// shared map frame and optionally a source and destination point describing a line
// segment. Anchors are immutable once created.
//
// Map snapshots carry the full spatial reference: the ordered anchor list, an opaque
// perception frame and an optional thumbnail used to guide relocalization.
//
// # Wire Format
//
// Every payload is self-describing:
//
//	[1-byte kind][JSON body]
//
// Kind 0x01 is an anchor, kind 0x02 is a map snapshot. There is no version negotiation;
// all peers in a session are expected to run the same codec.
//
// # Usage Example
//
//	anchor := sketch.Anchor{
//		ID:        sketch.AnchorID("ipad-7", 3),
//		Transform: sketch.Identity(),
//	}
//
//	payload, err := sketch.EncodeAnchor(anchor)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	msg, err := sketch.Decode(payload)
//	if errors.Is(err, sketch.ErrMalformed) {
//		// drop it
//	}
package sketch
