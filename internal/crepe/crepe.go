// Package crepe implements the signal-side half of the CREPE pitch tracker:
// assembling raw capture chunks into fixed-size analysis frames, normalising
// each frame into the feature vector the model expects, and decoding the
// model's 360-bin activation vector into a (frequency, confidence) estimate.
//
// The model itself is not part of this package. It is reached through the
// [pitch.Engine] interface so that it can be swapped or mocked.
//
// The constants below form a fixed contract with the packaged model file;
// changing any of them requires a different model.
package crepe

import (
	"math"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

const (
	// StepSize is the number of samples in one analysis frame.
	StepSize = pitch.InputSize

	// SampleRate is the sample rate in Hz the model was trained on.
	SampleRate = 16000

	// ActivationSize is the number of pitch bins produced per frame.
	ActivationSize = pitch.ActivationSize
)

// Prediction is the pitch estimate for a single analysis frame.
type Prediction struct {
	// Frequency in Hz. NaN means no pitch could be decoded.
	Frequency float32

	// Confidence is the peak activation, nominally in [0, 1].
	Confidence float32
}

// Voiced reports whether p carries a usable frequency.
func (p Prediction) Voiced() bool {
	f := float64(p.Frequency)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// CentsToHz converts a cents value (relative to 10 Hz) to a frequency in Hz.
func CentsToHz(cents float64) float64 {
	return 10 * math.Pow(2, cents/1200)
}

// HzToCents is the inverse of [CentsToHz].
func HzToCents(hz float64) float64 {
	return 1200 * math.Log2(hz/10)
}
