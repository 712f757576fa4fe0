package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/pitchtrace/internal/crepe"
	"github.com/MrWong99/pitchtrace/pkg/audio"
)

// recorderTimeout bounds closing a recorded session after capture ended.
const recorderTimeout = 5 * time.Second

// captureLoop runs one capture session after another until the device is
// exhausted or ctx ends. Only one session is active at a time.
//
// A session that fails is a capture fault: it is logged, the tracker is reset
// and the loop waits for the device to start a new session. It never
// reconnects on its own.
func (a *App) captureLoop(ctx context.Context) error {
	dev := a.providers.Device
	for {
		stream, err := dev.Open(ctx)
		switch {
		case ctx.Err() != nil:
			if stream != nil {
				_ = stream.Close()
			}
			return nil
		case errors.Is(err, audio.ErrDeviceClosed):
			slog.Info("capture device exhausted", "device", dev.Name())
			return nil
		case err != nil:
			return fmt.Errorf("app: open capture device %q: %w", dev.Name(), err)
		}

		if err := a.runSession(ctx, dev.Name(), stream); err != nil {
			slog.Warn("capture fault", "device", dev.Name(), "err", err)
		}
	}
}

// runSession feeds one stream into the tracker. It returns the error that
// ended the stream, or nil when it ended normally or ctx was cancelled.
func (a *App) runSession(ctx context.Context, device string, stream audio.Stream) error {
	defer stream.Close()

	started := time.Now().UTC()
	id, recorded := a.beginRecording(ctx, device, started)
	a.tracker.BeginSession(id, device, started)
	a.metrics.CaptureSessions.Add(ctx, 1)

	log := slog.With("session", id, "device", device)
	log.Info("capture session started")

	frames := audio.ConvertStream(stream.Frames(), crepe.SampleRate)
	defer func() {
		a.tracker.EndSession()
		a.metrics.CaptureSessions.Add(context.WithoutCancel(ctx), -1)
		if recorded {
			a.endRecording(ctx, id)
		}
		log.Info("capture session ended", "tracker", a.tracker)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = stream.Close()
			audio.Drain(frames)
			return nil
		case f, ok := <-frames:
			if !ok {
				return stream.Err()
			}
			pt, emitted, err := a.tracker.OnCapture(ctx, f.Samples, f.Timestamp, a.settings.Policy())
			if err != nil {
				// Already counted and logged by the tracker; the frame is lost.
				continue
			}
			if emitted && recorded {
				a.recorder.Record(id, pt)
			}
		}
	}
}

// beginRecording opens a recorded session and returns its id. Without a
// recorder, or when the store refuses the session, a fresh id is used and
// recorded is false.
func (a *App) beginRecording(ctx context.Context, device string, started time.Time) (id string, recorded bool) {
	if a.recorder == nil {
		return uuid.NewString(), false
	}
	id, err := a.recorder.Begin(ctx, device, started)
	if err != nil {
		slog.Warn("session not recorded", "device", device, "err", err)
		return uuid.NewString(), false
	}
	return id, true
}

// endRecording flushes the session's points and stamps its end time. It runs
// after ctx may have been cancelled.
func (a *App) endRecording(ctx context.Context, id string) {
	if a.recorder == nil {
		return
	}
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recorderTimeout)
	defer cancel()
	if err := a.recorder.End(ectx, id, time.Now().UTC()); err != nil {
		slog.Warn("recorded session not closed", "session", id, "err", err)
	}
}
