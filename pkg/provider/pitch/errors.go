package pitch

import (
	"errors"
	"fmt"
)

// ErrInference matches every *InferenceError via errors.Is.
var ErrInference = errors.New("pitch: inference failed")

// ErrUnavailable is wrapped by engines that are closed or not loaded.
var ErrUnavailable = errors.New("engine unavailable")

// InferenceError reports a failed inference call. The frame that triggered it
// produces no estimate.
type InferenceError struct {
	// Engine names the backend that failed (e.g. "onnx").
	Engine string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("pitch: %s inference failed: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InferenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInference) true for every InferenceError.
func (e *InferenceError) Is(target error) bool { return target == ErrInference }

// Wrap returns err as an *InferenceError attributed to engine. Errors that
// already are InferenceErrors are returned unchanged; nil stays nil.
func Wrap(engine string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Engine: engine, Err: err}
}

// CheckInput returns an error when features does not hold InputSize values.
func CheckInput(features []float32) error {
	if len(features) != InputSize {
		return fmt.Errorf("input has %d features, want %d", len(features), InputSize)
	}
	return nil
}

// ToActivation copies out into an Activation, failing on a wrong length.
func ToActivation(out []float32) (Activation, error) {
	var a Activation
	if len(out) != ActivationSize {
		return a, fmt.Errorf("output has %d bins, want %d", len(out), ActivationSize)
	}
	copy(a[:], out)
	return a, nil
}
