// Package audio defines how capture sources feed samples into pitchtrace.
//
// A [Device] is a named capture source (a file, a browser microphone, …).
// Opening it yields a [Stream], one capture session, that delivers
// [AudioFrame]s until the source ends or fails. Implementations live in
// sub-packages such as audio/file and audio/browser; audio/mock provides test
// doubles.
//
// This package lives under pkg/ so that external code can provide its own
// devices.
package audio

import (
	"context"
	"errors"
)

// ErrDeviceClosed is returned by [Device.Open] once the device will never
// produce another session. It ends the application's capture loop.
var ErrDeviceClosed = errors.New("audio: device closed")

// Device is a capture source.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Name identifies the device in logs, metrics and recorded sessions.
	Name() string

	// Open blocks until a capture session starts and returns its stream. It
	// returns ctx.Err() when ctx is cancelled and [ErrDeviceClosed] when the
	// device is exhausted.
	Open(ctx context.Context) (Stream, error)
}

// Stream is one capture session.
type Stream interface {
	// Frames delivers captured audio. The channel is closed when the session
	// ends, after which Err reports why.
	Frames() <-chan AudioFrame

	// Err returns the error that ended the session, or nil when the source
	// ended normally or was closed. Only meaningful after Frames is closed.
	Err() error

	// Close stops capture and releases resources. Frames is closed shortly
	// after. Safe to call more than once.
	Close() error
}
