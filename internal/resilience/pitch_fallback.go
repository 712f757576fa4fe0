package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

// PitchFallback implements [pitch.Engine] over an ordered set of engines, each
// behind its own circuit breaker. When every engine fails or is tripped the
// call fails with an [*pitch.InferenceError] so the frame is dropped.
type PitchFallback struct {
	group *FallbackGroup[pitch.Engine]
}

var _ pitch.Engine = (*PitchFallback)(nil)

// NewPitchFallback creates a PitchFallback with primary as the preferred engine.
//
// Context cancellation is never counted against an engine's breaker.
func NewPitchFallback(primary pitch.Engine, primaryName string, cfg FallbackConfig) *PitchFallback {
	cfg.CircuitBreaker.Neutral = isContextErr
	return &PitchFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an engine tried after the earlier ones.
func (f *PitchFallback) AddFallback(name string, e pitch.Engine) {
	f.group.AddFallback(name, e)
}

// Infer runs features through the first healthy engine.
func (f *PitchFallback) Infer(ctx context.Context, features []float32) (pitch.Activation, error) {
	act, _, err := ExecuteWithResult(f.group, func(e pitch.Engine) (pitch.Activation, error) {
		if err := ctx.Err(); err != nil {
			return pitch.Activation{}, err
		}
		return e.Infer(ctx, features)
	})
	if err != nil {
		return pitch.Activation{}, &pitch.InferenceError{Engine: "fallback", Err: err}
	}
	return act, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// States reports the breaker state of every engine, keyed by name.
func (f *PitchFallback) States() map[string]State {
	out := make(map[string]State, f.group.Len())
	f.group.Each(func(name string, _ pitch.Engine, s State) {
		out[name] = s
	})
	return out
}

// Healthy reports whether at least one engine currently accepts calls.
func (f *PitchFallback) Healthy() bool {
	ok := false
	f.group.Each(func(_ string, _ pitch.Engine, s State) {
		if s != StateOpen {
			ok = true
		}
	})
	return ok
}

// Close closes every engine and joins their errors.
func (f *PitchFallback) Close() error {
	var errs []error
	f.group.Each(func(name string, e pitch.Engine, _ State) {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}
