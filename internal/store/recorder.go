package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// Recorder writes emitted points to the store in batches from a background
// goroutine so the capture path never waits on disk.
type Recorder struct {
	st       *Store
	batch    int
	interval time.Duration

	in      chan recordItem
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

type recordItem struct {
	row   PointRow
	flush chan error
}

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithBatchSize sets how many points are buffered before a write. Default 256.
func WithBatchSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithFlushInterval sets the maximum age of a buffered point. Default 1s.
func WithFlushInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithQueueSize sets the capacity of the intake queue. Points offered while
// it is full are dropped. Default 4096.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.in = make(chan recordItem, n)
		}
	}
}

// NewRecorder starts a recorder writing to st. Call [Recorder.Close] to stop
// it.
func NewRecorder(st *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		st:       st,
		batch:    256,
		interval: time.Second,
		in:       make(chan recordItem, 4096),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	go r.run()
	return r
}

// Begin creates a new session row and returns its id.
func (r *Recorder) Begin(ctx context.Context, device string, started time.Time) (string, error) {
	id := uuid.NewString()
	if err := r.st.CreateSession(ctx, id, device, started); err != nil {
		return "", err
	}
	return id, nil
}

// Record queues pt for session. It never blocks; it reports false when the
// point was dropped because the queue is full or the recorder is closed.
func (r *Recorder) Record(session string, pt tracker.Point) bool {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.in <- recordItem{row: PointRow{SessionID: session, Point: pt}}:
		return true
	default:
		if r.dropped.Add(1) == 1 {
			slog.Warn("store: recorder queue full, dropping points")
		}
		return false
	}
}

// Dropped returns the number of points dropped so far.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Flush blocks until every point queued before the call has been written.
func (r *Recorder) Flush(ctx context.Context) error {
	ch := make(chan error, 1)
	r.closeMu.RLock()
	if r.closed {
		r.closeMu.RUnlock()
		return nil
	}
	select {
	case r.in <- recordItem{flush: ch}:
	case <-ctx.Done():
		r.closeMu.RUnlock()
		return ctx.Err()
	}
	r.closeMu.RUnlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End flushes pending points and marks session as ended.
func (r *Recorder) End(ctx context.Context, session string, ended time.Time) error {
	if err := r.Flush(ctx); err != nil {
		return fmt.Errorf("store: flush session %s: %w", session, err)
	}
	return r.st.EndSession(ctx, session, ended)
}

// Close writes any buffered points and stops the background goroutine. It is
// safe to call more than once.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.in)
	}
	r.closeMu.Unlock()
	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	buf := make([]PointRow, 0, r.batch)
	write := func() error {
		if len(buf) == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := r.st.InsertPoints(ctx, buf)
		if err != nil {
			slog.Warn("store: writing points failed", "points", len(buf), "err", err)
		}
		buf = buf[:0]
		return err
	}

	for {
		select {
		case it, ok := <-r.in:
			if !ok {
				_ = write()
				return
			}
			if it.flush != nil {
				it.flush <- write()
				continue
			}
			buf = append(buf, it.row)
			if len(buf) >= r.batch {
				_ = write()
			}
		case <-ticker.C:
			_ = write()
		}
	}
}
