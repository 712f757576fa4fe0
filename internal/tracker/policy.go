package tracker

import (
	"fmt"
	"math"

	"github.com/MrWong99/pitchtrace/internal/crepe"
)

// Policy decides which predictions are accepted. A copy is taken per
// submission so the display side can change settings at any time.
type Policy struct {
	// ConfidenceThreshold is the minimum peak activation for a prediction to
	// count as voiced.
	ConfidenceThreshold float32

	// MinHz and MaxHz bound the accepted frequency range (inclusive). Only
	// used by the averaging mode.
	MinHz, MaxHz float64
}

// Confident reports whether p meets the confidence threshold.
func (pol Policy) Confident(p crepe.Prediction) bool {
	return p.Confidence >= pol.ConfidenceThreshold
}

// InRange reports whether p's frequency lies within [MinHz, MaxHz]. NaN is
// never in range.
func (pol Policy) InRange(p crepe.Prediction) bool {
	f := float64(p.Frequency)
	return pol.MinHz <= f && f <= pol.MaxHz
}

// Mode selects how predictions are turned into points.
type Mode string

const (
	// ModePerFrame emits one point per frame. The value is the predicted
	// frequency when confident, NaN otherwise.
	ModePerFrame Mode = "per_frame"

	// ModeAverage emits one point per window of frames: the mean frequency of
	// the confident, in-range predictions, or NaN when none survive.
	ModeAverage Mode = "average"
)

// ParseMode validates s. An empty string selects [ModeAverage].
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAverage:
		return ModeAverage, nil
	case ModePerFrame:
		return ModePerFrame, nil
	}
	return "", fmt.Errorf("tracker: unknown mode %q (want %q or %q)", s, ModePerFrame, ModeAverage)
}

// nan is returned for points without a usable frequency.
var nan = math.NaN()
