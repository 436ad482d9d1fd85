// Package peer provides the reliable multi-peer transport used by the sync engine.
//
// The engine only depends on the Channel interface. RedisChannel implements it on top of
// Redis Pub/Sub: every peer has its own inbox channel, a shared set holds the session
// roster and join/leave notifications travel on a session-wide roster channel.
//
// Redis keys and channels are namespaced by session name:
//
//	Roster:        arsketch:{session}:peers
//	Peer inbox:    arsketch:{session}:peer:{peer_id}:inbox
//	Roster events: arsketch:{session}:roster_events
package peer

import (
	"context"
	"fmt"

	"github.com/dyluth/arsketch/pkg/sketch"
)

// Inbound is a single message received from a peer.
type Inbound struct {
	From    sketch.PeerID
	Payload []byte
}

// RosterEventType distinguishes join and leave notifications.
type RosterEventType string

const (
	RosterJoin  RosterEventType = "join"
	RosterLeave RosterEventType = "leave"
)

// RosterEvent is an informational roster change.
type RosterEvent struct {
	Type RosterEventType `json:"type"`
	Peer sketch.PeerID   `json:"peer"`
}

// SendFailure reports that a payload could not be delivered to one peer.
// A failure for one peer never prevents delivery to the others.
type SendFailure struct {
	Peer sketch.PeerID
	Err  error
}

func (f SendFailure) Error() string {
	return fmt.Sprintf("send to %s: %v", f.Peer, f.Err)
}

func (f SendFailure) Unwrap() error {
	return f.Err
}

// Channel is the transport surface consumed by the sync engine.
type Channel interface {
	// Self returns this device's peer id.
	Self() sketch.PeerID

	// SendToAll delivers payload to every connected peer. Per-peer failures are
	// returned for logging; the call itself never fails as a whole.
	SendToAll(ctx context.Context, payload []byte) []SendFailure

	// ConnectedPeers returns the current roster, sorted, excluding Self.
	ConnectedPeers() []sketch.PeerID

	// Messages delivers inbound payloads in arrival order.
	Messages() <-chan Inbound

	// RosterEvents delivers join/leave notifications for other peers.
	RosterEvents() <-chan RosterEvent

	// Errors delivers non-fatal transport errors such as undecodable envelopes.
	Errors() <-chan error
}
