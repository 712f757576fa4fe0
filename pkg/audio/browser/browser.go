// Package browser implements an [audio.Device] fed by a browser microphone
// over a websocket.
//
// The page captures audio with the Web Audio API, converts it to signed
// 16-bit little-endian PCM and sends it as binary messages to the device's
// HTTP handler. Query parameters describe the format:
//
//	/ws/capture?rate=48000&channels=1
//
// Every websocket connection is one capture session. Only one session may be
// active at a time; further connections are refused with 409 Conflict.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/pitchtrace/pkg/audio"
)

const (
	defaultRate     = 48000
	defaultChannels = 1

	// handoffTimeout bounds how long a new connection waits for the capture
	// loop to pick it up.
	handoffTimeout = 5 * time.Second

	// maxMessageBytes is one second of 48 kHz stereo PCM.
	maxMessageBytes = 48000 * 2 * 2
)

// ErrDisconnected is reported by a stream whose browser went away without a
// normal websocket close.
var ErrDisconnected = errors.New("browser: client disconnected")

// Device accepts websocket capture sessions. It is an [audio.Device] and an
// [http.Handler].
type Device struct {
	name     string
	origins  []string
	sessions chan *stream
	closed   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	active    *stream
}

var (
	_ audio.Device = (*Device)(nil)
	_ http.Handler = (*Device)(nil)
)

// Option configures a Device.
type Option func(*Device)

// WithName overrides the device name. Default: "browser".
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(d *Device) { d.origins = patterns }
}

// New returns a Device with no active session.
func New(opts ...Option) *Device {
	d := &Device{
		name:     "browser",
		sessions: make(chan *stream),
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name implements [audio.Device].
func (d *Device) Name() string { return d.name }

// Open implements [audio.Device]. It blocks until a browser connects.
func (d *Device) Open(ctx context.Context) (audio.Stream, error) {
	select {
	case s := <-d.sessions:
		return s, nil
	case <-d.closed:
		return nil, audio.ErrDeviceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active reports whether a browser session is currently connected.
func (d *Device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Shutdown ends the active session and makes Open return
// [audio.ErrDeviceClosed].
func (d *Device) Shutdown() {
	d.closeOnce.Do(func() { close(d.closed) })
	d.mu.Lock()
	s := d.active
	d.mu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

// ServeHTTP upgrades the request and runs a capture session until the
// connection ends.
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case <-d.closed:
		http.Error(w, "capture device closed", http.StatusServiceUnavailable)
		return
	default:
	}

	s := &stream{
		frames: make(chan audio.AudioFrame, 16),
		done:   make(chan struct{}),
		format: format,
	}
	if !d.claim(s) {
		http.Error(w, "another capture session is active", http.StatusConflict)
		return
	}
	defer d.release(s)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: d.origins})
	if err != nil {
		slog.Warn("browser capture: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	s.conn = conn

	handoff := time.NewTimer(handoffTimeout)
	defer handoff.Stop()
	select {
	case d.sessions <- s:
	case <-handoff.C:
		conn.Close(websocket.StatusTryAgainLater, "capture loop busy")
		return
	case <-d.closed:
		conn.Close(websocket.StatusGoingAway, "capture device closed")
		return
	case <-r.Context().Done():
		return
	}

	slog.Info("browser capture connected", "remote", r.RemoteAddr, "format", format.String())
	s.run(r.Context())
	slog.Info("browser capture disconnected", "remote", r.RemoteAddr, "err", s.Err())
}

func (d *Device) claim(s *stream) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return false
	}
	d.active = s
	return true
}

func (d *Device) release(s *stream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == s {
		d.active = nil
	}
}

func parseFormat(r *http.Request) (audio.Format, error) {
	f := audio.Format{SampleRate: defaultRate, Channels: defaultChannels}
	q := r.URL.Query()
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 8000 || n > 192000 {
			return f, fmt.Errorf("invalid rate %q", v)
		}
		f.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 2 {
			return f, fmt.Errorf("invalid channels %q", v)
		}
		f.Channels = n
	}
	return f, nil
}

// stream is one websocket capture session.
type stream struct {
	conn   *websocket.Conn
	frames chan audio.AudioFrame
	done   chan struct{}
	format audio.Format

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (s *stream) Frames() <-chan audio.AudioFrame { return s.frames }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			// The close handshake completes through the read loop.
			go s.conn.Close(websocket.StatusNormalClosure, "capture stopped")
		}
	})
	return nil
}

// run reads binary PCM messages until the connection ends. Timestamps follow
// the audio clock: the number of sample frames received so far.
func (s *stream) run(ctx context.Context) {
	defer close(s.frames)

	var pos int64
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.finish(err)
			return
		}
		if typ != websocket.MessageBinary {
			slog.Debug("browser capture: ignoring text message", "bytes", len(data))
			continue
		}

		samples := audio.DecodePCM16(data)
		samples = samples[:len(samples)-len(samples)%s.format.Channels]
		if len(samples) == 0 {
			continue
		}
		frame := audio.AudioFrame{
			Samples:    samples,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Timestamp:  time.Duration(pos) * time.Second / time.Duration(s.format.SampleRate),
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
		pos += int64(len(samples) / s.format.Channels)
	}
}

func (s *stream) finish(err error) {
	select {
	case <-s.done:
		// Closed locally.
		return
	default:
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	s.mu.Lock()
	s.err = fmt.Errorf("%w: %v", ErrDisconnected, err)
	s.mu.Unlock()
}
