// Package mock provides a test double for the pitch.Engine interface.
//
// Use Engine to script activation vectors (or failures) and inspect the
// features that were submitted for inference.
//
// Example:
//
//	var act pitch.Activation
//	act[180] = 1
//	eng := &mock.Engine{Activation: act}
//	got, _ := eng.Infer(ctx, features[:])
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

// InferCall records a single invocation of Engine.Infer.
type InferCall struct {
	// Features is a copy of the slice passed to Infer.
	Features []float32
}

// Engine is a mock implementation of pitch.Engine.
type Engine struct {
	mu sync.Mutex

	// Activation is returned by every Infer call unless Script is non-empty.
	Activation pitch.Activation

	// Script, if non-empty, supplies the activation for successive calls. The
	// last entry is repeated once the script is exhausted.
	Script []pitch.Activation

	// InferErr, if non-nil, is returned (wrapped as *pitch.InferenceError) by
	// every Infer call.
	InferErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// InferCalls records every call to Infer in order.
	InferCalls []InferCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
}

// Infer records the call and returns the scripted activation or InferErr.
func (e *Engine) Infer(_ context.Context, features []float32) (pitch.Activation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]float32, len(features))
	copy(cp, features)
	e.InferCalls = append(e.InferCalls, InferCall{Features: cp})

	if e.closed {
		return pitch.Activation{}, pitch.Wrap("mock", pitch.ErrUnavailable)
	}
	if e.InferErr != nil {
		return pitch.Activation{}, pitch.Wrap("mock", e.InferErr)
	}
	if err := pitch.CheckInput(features); err != nil {
		return pitch.Activation{}, pitch.Wrap("mock", err)
	}
	if n := len(e.Script); n > 0 {
		idx := min(len(e.InferCalls)-1, n-1)
		return e.Script[idx], nil
	}
	return e.Activation, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	e.closed = true
	return e.CloseErr
}

// Calls returns the number of recorded Infer calls. Thread-safe.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.InferCalls)
}

// ResetCalls clears all recorded call history. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InferCalls = nil
	e.CloseCallCount = 0
}

// ErrScripted is a convenience error for tests that need an engine failure.
var ErrScripted = errors.New("mock: scripted failure")

// Ensure Engine implements pitch.Engine at compile time.
var _ pitch.Engine = (*Engine)(nil)
