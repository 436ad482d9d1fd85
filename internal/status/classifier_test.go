package status

import (
	"testing"

	"github.com/dyluth/arsketch/pkg/sketch"
	"github.com/stretchr/testify/assert"
)

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		rule    Rule
		message string
		showImg bool
	}{
		{
			name:    "ready to save when mapped with a drawn anchor",
			signals: Signals{Tracking: sketch.Normal(), Mapping: sketch.MappingMapped, HasUserAnchor: true},
			rule:    RuleReadyToSave,
			message: MsgReadyToSave,
		},
		{
			name:    "ready to save while extending",
			signals: Signals{Tracking: sketch.Normal(), Mapping: sketch.MappingExtending, HasUserAnchor: true},
			rule:    RuleReadyToSave,
			message: MsgReadyToSave,
		},
		{
			name:    "tap to sketch without anchors",
			signals: Signals{Tracking: sketch.Normal(), Mapping: sketch.MappingMapped},
			rule:    RuleTapToSketch,
			message: MsgTapToSketch,
		},
		{
			name:    "load saved experience",
			signals: Signals{Tracking: sketch.Normal(), Mapping: sketch.MappingLimited, HasSavedMap: true},
			rule:    RuleLoadSaved,
			message: MsgLoadSaved,
		},
		{
			name:    "wait for session without saved map",
			signals: Signals{Tracking: sketch.Normal(), Mapping: sketch.MappingLimited},
			rule:    RuleWaitForSession,
			message: MsgWaitForSession,
		},
		{
			name: "wait for session while relocalizing alone",
			signals: Signals{
				Tracking: sketch.Normal(), Mapping: sketch.MappingLimited,
				HasSavedMap: true, Relocalizing: true,
			},
			rule:    RuleWaitForSession,
			message: MsgWaitForSession,
		},
		{
			name: "connected with peers",
			signals: Signals{
				Tracking: sketch.Normal(), Mapping: sketch.MappingLimited,
				HasSavedMap: true, Relocalizing: true, Peers: []sketch.PeerID{"ipad", "iphone"},
			},
			rule:    RuleConnected,
			message: "Connected with ipad,iphone.",
		},
		{
			name: "relocalizing to reference image",
			signals: Signals{
				Tracking: sketch.Limited(sketch.ReasonRelocalizing), Mapping: sketch.MappingNotAvailable,
				Relocalizing: true, MapAuthority: "ipad",
			},
			rule:    RuleMoveToReference,
			message: MsgMoveToReference,
			showImg: true,
		},
		{
			name: "received map while initializing",
			signals: Signals{
				Tracking: sketch.Limited(sketch.ReasonInitializing), Mapping: sketch.MappingNotAvailable,
				Relocalizing: true, MapAuthority: "ipad",
			},
			rule:    RuleReceivedMap,
			message: "Received map from ipad.",
		},
		{
			name: "received map after relocalization flag cleared",
			signals: Signals{
				Tracking: sketch.Limited(sketch.ReasonRelocalizing), MapAuthority: "ipad",
			},
			rule:    RuleReceivedMap,
			message: "Received map from ipad.",
		},
		{
			name:    "falls back to tracking feedback",
			signals: Signals{Tracking: sketch.Limited(sketch.ReasonExcessiveMotion), Mapping: sketch.MappingMapped, HasUserAnchor: true},
			rule:    RuleTrackingFeedback,
			message: "Move the device more slowly.",
		},
		{
			name:    "relocalizing without flag or authority",
			signals: Signals{Tracking: sketch.Limited(sketch.ReasonRelocalizing)},
			rule:    RuleTrackingFeedback,
			message: "Resume the session experience or reset.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.signals)
			assert.Equal(t, tt.rule, got.Rule)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.showImg, got.ShowThumbnail)
		})
	}
}

// Rule 5 is only reachable once rules 3 and 4 have declined: a saved map exists,
// the device is relocalizing and the frame is not empty or peers are present.
func TestClassifyConnectedRequiresNoAuthority(t *testing.T) {
	s := Signals{
		Tracking:     sketch.Normal(),
		Mapping:      sketch.MappingLimited,
		HasSavedMap:  true,
		Relocalizing: true,
		Peers:        []sketch.PeerID{"ipad"},
		MapAuthority: "ipad",
		FrameAnchors: 3,
	}

	got := Classify(s)
	assert.Equal(t, RuleTrackingFeedback, got.Rule)
	assert.True(t, got.Hidden())
}

func TestClassifyOrderIsFirstMatch(t *testing.T) {
	// Every predicate from rule 1 onwards holds; rule 1 must win.
	s := Signals{
		Tracking:      sketch.Normal(),
		Mapping:       sketch.MappingMapped,
		HasSavedMap:   true,
		Peers:         []sketch.PeerID{"ipad"},
		HasUserAnchor: true,
	}
	assert.Equal(t, RuleReadyToSave, Classify(s).Rule)

	s.HasUserAnchor = false
	assert.Equal(t, RuleTapToSketch, Classify(s).Rule)

	s.Mapping = sketch.MappingLimited
	assert.Equal(t, RuleLoadSaved, Classify(s).Rule)
}

func TestClassifyIsDeterministic(t *testing.T) {
	s := Signals{
		Tracking:     sketch.Normal(),
		Mapping:      sketch.MappingLimited,
		HasSavedMap:  true,
		Relocalizing: true,
		Peers:        []sketch.PeerID{"b", "a"},
		FrameAnchors: 1,
	}

	first := Classify(s)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(s))
	}
	assert.Equal(t, "Connected with b,a.", first.Message)
}

func TestFeedback(t *testing.T) {
	assert.Equal(t, "", Feedback(sketch.Normal()))
	assert.Equal(t, "Tracking unavailable.", Feedback(sketch.NotAvailable()))
	assert.Contains(t, Feedback(sketch.Limited(sketch.ReasonInsufficientFeatures)), "surface detail")
	assert.Contains(t, Feedback(sketch.Limited(sketch.ReasonInitializing)), "horizontal surfaces")
	assert.Equal(t, "Tracking limited.", Feedback(sketch.TrackingState{Quality: sketch.TrackingLimited}))
}
