package sketch

import (
	"fmt"
	"strings"
)

// TrackingQuality is the coarse camera tracking quality reported by the perception subsystem.
type TrackingQuality string

const (
	// TrackingNotAvailable means no pose estimate exists yet
	TrackingNotAvailable TrackingQuality = "not_available"

	// TrackingLimited means a pose exists but is unreliable; see TrackingReason
	TrackingLimited TrackingQuality = "limited"

	// TrackingNormal means tracking is providing reliable results
	TrackingNormal TrackingQuality = "normal"
)

// TrackingReason explains why tracking is limited.
type TrackingReason string

const (
	ReasonNone                 TrackingReason = ""
	ReasonInitializing         TrackingReason = "initializing"
	ReasonRelocalizing         TrackingReason = "relocalizing"
	ReasonExcessiveMotion      TrackingReason = "excessive_motion"
	ReasonInsufficientFeatures TrackingReason = "insufficient_features"
)

// TrackingState combines the tracking quality with the limiting reason, if any.
type TrackingState struct {
	Quality TrackingQuality `json:"quality"`
	Reason  TrackingReason  `json:"reason,omitempty"`
}

// Normal returns the normal tracking state.
func Normal() TrackingState {
	return TrackingState{Quality: TrackingNormal}
}

// Limited returns a limited tracking state with the given reason.
func Limited(reason TrackingReason) TrackingState {
	return TrackingState{Quality: TrackingLimited, Reason: reason}
}

// NotAvailable returns the not-available tracking state.
func NotAvailable() TrackingState {
	return TrackingState{Quality: TrackingNotAvailable}
}

// IsNormal reports whether tracking is normal.
func (t TrackingState) IsNormal() bool {
	return t.Quality == TrackingNormal
}

// IsLimited reports whether tracking is limited for the given reason.
func (t TrackingState) IsLimited(reason TrackingReason) bool {
	return t.Quality == TrackingLimited && t.Reason == reason
}

func (t TrackingState) String() string {
	if t.Quality == TrackingLimited && t.Reason != ReasonNone {
		return fmt.Sprintf("limited(%s)", t.Reason)
	}
	return string(t.Quality)
}

// Validate checks if the TrackingState is a valid combination.
func (t TrackingState) Validate() error {
	switch t.Quality {
	case TrackingNotAvailable, TrackingNormal:
		if t.Reason != ReasonNone {
			return fmt.Errorf("tracking %s cannot carry a reason (got %q)", t.Quality, t.Reason)
		}
		return nil
	case TrackingLimited:
		switch t.Reason {
		case ReasonInitializing, ReasonRelocalizing, ReasonExcessiveMotion, ReasonInsufficientFeatures:
			return nil
		default:
			return fmt.Errorf("unknown tracking reason: %q", t.Reason)
		}
	default:
		return fmt.Errorf("unknown tracking quality: %q", t.Quality)
	}
}

// ParseTrackingState parses the String form of a tracking state, e.g. "normal" or
// "limited(relocalizing)".
func ParseTrackingState(s string) (TrackingState, error) {
	t := TrackingState{Quality: TrackingQuality(s)}
	if rest, ok := strings.CutPrefix(s, "limited("); ok && strings.HasSuffix(rest, ")") {
		t = Limited(TrackingReason(strings.TrimSuffix(rest, ")")))
	}
	if err := t.Validate(); err != nil {
		return TrackingState{}, err
	}
	return t, nil
}

// MappingStatus describes how much of the environment the local map covers.
type MappingStatus string

const (
	MappingNotAvailable MappingStatus = "not_available"
	MappingLimited      MappingStatus = "limited"
	MappingExtending    MappingStatus = "extending"
	MappingMapped       MappingStatus = "mapped"
)

// IsSaveable reports whether the map is mature enough to draw on and save.
func (m MappingStatus) IsSaveable() bool {
	return m == MappingExtending || m == MappingMapped
}

// Validate checks if the MappingStatus is a valid enum value.
func (m MappingStatus) Validate() error {
	switch m {
	case MappingNotAvailable, MappingLimited, MappingExtending, MappingMapped:
		return nil
	default:
		return fmt.Errorf("unknown mapping status: %q", m)
	}
}
