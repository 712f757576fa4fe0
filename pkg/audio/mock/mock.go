// Package mock provides in-memory implementations of [audio.Device] and
// [audio.Stream] for unit tests.
//
// A Device hands out its Streams in order, one per Open call, and returns
// [audio.ErrDeviceClosed] once they are exhausted. Streams deliver a fixed
// list of frames and then end with StreamErr.
//
//	dev := &mock.Device{
//	    DeviceName: "test",
//	    Streams: []*mock.Stream{
//	        {Script: []audio.AudioFrame{{Samples: make([]int16, 1024), SampleRate: 16000, Channels: 1}}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pitchtrace/pkg/audio"
)

// Device is a mock [audio.Device].
type Device struct {
	mu sync.Mutex

	// DeviceName is returned by Name. Defaults to "mock".
	DeviceName string

	// Streams are returned by successive Open calls.
	Streams []*Stream

	// OpenErr, if non-nil, is returned by every Open call.
	OpenErr error

	// OpenCallCount records how many times Open was called.
	OpenCallCount int
}

var _ audio.Device = (*Device)(nil)

// Name implements [audio.Device].
func (d *Device) Name() string {
	if d.DeviceName == "" {
		return "mock"
	}
	return d.DeviceName
}

// Open implements [audio.Device].
func (d *Device) Open(ctx context.Context) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCallCount++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	idx := d.OpenCallCount - 1
	if idx >= len(d.Streams) {
		return nil, audio.ErrDeviceClosed
	}
	s := d.Streams[idx]
	s.start()
	return s, nil
}

// Calls returns OpenCallCount. Thread-safe.
func (d *Device) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.OpenCallCount
}

// Stream is a mock [audio.Stream].
type Stream struct {
	// Script holds the frames delivered in order once the stream is opened.
	Script []audio.AudioFrame

	// StreamErr is reported by Err after all frames were delivered.
	StreamErr error

	// Hold keeps the stream open after the last frame until Close is called.
	Hold bool

	once      sync.Once
	closeOnce sync.Once
	ch        chan audio.AudioFrame
	done      chan struct{}

	mu             sync.Mutex
	err            error
	closeCallCount int
}

var _ audio.Stream = (*Stream)(nil)

func (s *Stream) start() {
	s.once.Do(func() {
		s.ch = make(chan audio.AudioFrame)
		s.done = make(chan struct{})
		go s.run()
	})
}

func (s *Stream) run() {
	defer close(s.ch)
	for _, f := range s.Script {
		select {
		case s.ch <- f:
		case <-s.done:
			return
		}
	}
	if s.Hold {
		<-s.done
		return
	}
	s.mu.Lock()
	s.err = s.StreamErr
	s.mu.Unlock()
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.AudioFrame {
	s.start()
	return s.ch
}

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.start()
	s.mu.Lock()
	s.closeCallCount++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// CloseCalls returns how many times Close was called.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCallCount
}
