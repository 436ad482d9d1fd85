// Package status derives the single user-facing session message from the current
// tracking, mapping, roster and hand-off signals.
package status

import (
	"fmt"
	"strings"

	"github.com/dyluth/arsketch/pkg/sketch"
)

// Messages shown by the classifier. Rule 5, 7 and 8 messages are built at runtime.
const (
	MsgReadyToSave        = "Tap 'Save Experience' to save the current map."
	MsgTapToSketch        = "Tap Sketch to draw on screen."
	MsgLoadSaved          = "Move around to map the environment, or tap 'Load Experience' to load a saved experience."
	MsgWaitForSession     = "Move around to map the environment, or wait to join a shared session."
	MsgMoveToReference    = "Move your device to the location shown in the image."
	connectedWithFormat   = "Connected with %s."
	receivedMapFromFormat = "Received map from %s."
)

// Rule identifies which row of the decision table produced a Result.
type Rule int

const (
	RuleReadyToSave Rule = iota + 1
	RuleTapToSketch
	RuleLoadSaved
	RuleWaitForSession
	RuleConnected
	RuleMoveToReference
	RuleReceivedMap
	RuleTrackingFeedback
)

// Signals is everything the classifier looks at. It is a plain value; the classifier
// never reads anything else.
type Signals struct {
	Tracking      sketch.TrackingState
	Mapping       sketch.MappingStatus
	HasSavedMap   bool            // A snapshot exists in local storage
	Relocalizing  bool            // A snapshot is being applied and tracking has not recovered
	Peers         []sketch.PeerID // Connected peers, in display order
	MapAuthority  sketch.PeerID   // Empty when no snapshot has been received
	HasUserAnchor bool            // At least one user-drawn anchor exists
	FrameAnchors  int             // Anchors of any kind in the current frame
}

// Result is the classifier's single output.
type Result struct {
	Rule          Rule
	Message       string
	ShowThumbnail bool // Surface the reference image stored with the adopted snapshot
}

// Hidden reports whether the status view should be hidden because there is nothing to say.
func (r Result) Hidden() bool {
	return r.Message == ""
}

// Classify evaluates the decision table top to bottom and returns the first match.
// The order of the rules is significant.
func Classify(s Signals) Result {
	normal := s.Tracking.IsNormal()
	mapped := s.Mapping.IsSaveable()
	hasPeers := len(s.Peers) > 0
	hasAuthority := s.MapAuthority != ""

	switch {
	case normal && mapped && s.HasUserAnchor:
		return Result{Rule: RuleReadyToSave, Message: MsgReadyToSave}

	case normal && mapped:
		return Result{Rule: RuleTapToSketch, Message: MsgTapToSketch}

	case normal && s.HasSavedMap && !s.Relocalizing:
		return Result{Rule: RuleLoadSaved, Message: MsgLoadSaved}

	case normal && (!s.HasSavedMap || (s.FrameAnchors == 0 && !hasPeers)):
		return Result{Rule: RuleWaitForSession, Message: MsgWaitForSession}

	case normal && hasPeers && !hasAuthority:
		return Result{Rule: RuleConnected, Message: fmt.Sprintf(connectedWithFormat, joinPeers(s.Peers))}

	case s.Tracking.IsLimited(sketch.ReasonRelocalizing) && s.Relocalizing:
		return Result{Rule: RuleMoveToReference, Message: MsgMoveToReference, ShowThumbnail: true}

	case (s.Tracking.IsLimited(sketch.ReasonInitializing) || s.Tracking.IsLimited(sketch.ReasonRelocalizing)) && hasAuthority:
		return Result{Rule: RuleReceivedMap, Message: fmt.Sprintf(receivedMapFromFormat, s.MapAuthority)}

	default:
		return Result{Rule: RuleTrackingFeedback, Message: Feedback(s.Tracking)}
	}
}

func joinPeers(peers []sketch.PeerID) string {
	names := make([]string, len(peers))
	for i, p := range peers {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
