// Package pitch defines the Engine interface for pitch-model inference backends.
//
// An Engine wraps a pretrained frame-level pitch model (CREPE in production)
// and exposes it as a pure function from one normalised analysis frame to the
// model's per-bin activation vector. Everything around the model (framing,
// normalisation, decoding, aggregation) lives in internal/crepe and
// internal/tracker, so engines can be swapped or mocked without touching the
// decoding logic.
//
// Engines are called synchronously from the capture goroutine, one frame at a
// time. They must hold on to a single long-lived model handle; building a new
// session per frame is far too slow for real-time use.
package pitch

import "context"

const (
	// InputSize is the number of float32 features per inference call.
	InputSize = 1024

	// ActivationSize is the number of pitch bins returned per call.
	ActivationSize = 360
)

// Activation holds one weight per pitch bin. Values are not normalised; the
// peak value doubles as the confidence of the estimate.
type Activation [ActivationSize]float32

// Engine runs the pitch model.
//
// Implementations need not be safe for concurrent use unless they say so: the
// pipeline never calls Infer from more than one goroutine at a time.
type Engine interface {
	// Infer runs the model on features, which must hold exactly InputSize
	// values. Every failure is reported as an *InferenceError; callers treat
	// it as a dropped frame.
	Infer(ctx context.Context, features []float32) (Activation, error)

	// Close releases the model handle. Calling Close more than once is safe.
	Close() error
}
