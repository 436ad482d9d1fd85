package status

import "github.com/dyluth/arsketch/pkg/sketch"

// Feedback returns the perception subsystem's own description of a tracking state.
// Normal tracking has nothing to report, which hides the status view.
func Feedback(t sketch.TrackingState) string {
	switch t.Quality {
	case sketch.TrackingNormal:
		return ""
	case sketch.TrackingNotAvailable:
		return "Tracking unavailable."
	}

	switch t.Reason {
	case sketch.ReasonInitializing:
		return "Move the device around to detect horizontal surfaces."
	case sketch.ReasonRelocalizing:
		return "Resume the session experience or reset."
	case sketch.ReasonExcessiveMotion:
		return "Move the device more slowly."
	case sketch.ReasonInsufficientFeatures:
		return "Point the device at an area with visible surface detail, or improve lighting conditions."
	default:
		return "Tracking limited."
	}
}
