// Package tracker drives the real-time pitch pipeline for one capture source
// and owns the resulting pitch series.
//
// A [Tracker] is fed capture chunks by a single capture goroutine through
// [Tracker.OnCapture]. Each chunk is assembled into analysis frames,
// normalised, run through a [pitch.Engine], decoded and aggregated into
// [Point]s. Any number of readers can take snapshots concurrently; the model
// call runs without holding the lock so readers never wait on inference.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/pitchtrace/internal/crepe"
	"github.com/MrWong99/pitchtrace/internal/observe"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

// Session describes the capture session currently feeding a Tracker.
type Session struct {
	ID      string    `json:"id"`
	Device  string    `json:"device"`
	Started time.Time `json:"started"`
	Active  bool      `json:"active"`
}

// Stats are running counters for the current session.
type Stats struct {
	Frames   uint64 `json:"frames"`
	Dropped  uint64 `json:"dropped"`
	Points   int    `json:"points"`
	Buffered int    `json:"buffered"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMode sets the aggregation mode and averaging window.
func WithMode(mode Mode, steps int) Option {
	return func(t *Tracker) { t.agg = NewAggregator(mode, steps) }
}

// WithMaxPoints caps the series length; the oldest points are discarded
// first. Zero keeps every point.
func WithMaxPoints(n int) Option {
	return func(t *Tracker) { t.maxPoints = max(0, n) }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithEngineName sets the engine label used in metrics and logs.
func WithEngineName(name string) Option {
	return func(t *Tracker) { t.engineName = name }
}

// Tracker is the shared pitch-tracking state. It is safe for concurrent use;
// OnCapture itself must only be called from one goroutine at a time.
type Tracker struct {
	engine     pitch.Engine
	decoder    *crepe.Decoder
	metrics    *observe.Metrics
	engineName string
	maxPoints  int

	mu          sync.RWMutex
	asm         crepe.Assembler
	agg         *Aggregator
	series      []Point
	lastElapsed float64
	lastGood    float64
	hasGood     bool
	session     Session
	generation  uint64
	stats       Stats
}

// New returns a Tracker using engine for inference and decoder to interpret
// its output.
func New(engine pitch.Engine, decoder *crepe.Decoder, opts ...Option) *Tracker {
	t := &Tracker{
		engine:     engine,
		decoder:    decoder,
		engineName: "engine",
	}
	for _, o := range opts {
		o(t)
	}
	if t.agg == nil {
		t.agg = NewAggregator(ModeAverage, DefaultStepsPerDisplay)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// BeginSession starts a new capture session. The previous series, stream
// clock and buffered samples are discarded.
func (t *Tracker) BeginSession(id, device string, started time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
	t.series = nil
	t.lastElapsed = 0
	t.lastGood, t.hasGood = 0, false
	t.stats = Stats{}
	t.session = Session{ID: id, Device: device, Started: started, Active: true}
}

// EndSession tears down the current session: the stream clock and buffered
// samples are cleared, the series stays readable. Results of inference calls
// still in flight are discarded.
func (t *Tracker) EndSession() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
	t.session.Active = false
}

func (t *Tracker) resetLocked() {
	t.asm.Reset()
	t.agg.Reset()
	t.generation++
}

// SetMode replaces the aggregation mode. Pending predictions are dropped.
func (t *Tracker) SetMode(mode Mode, steps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agg = NewAggregator(mode, steps)
}

// OnCapture feeds one capture chunk stamped with the capture clock ts.
//
// When the chunk completes an analysis frame the frame is run through the
// model and pol is applied. It returns the appended point, if any. Inference
// failures drop the frame and are returned as [*pitch.InferenceError]; the
// tracker stays usable.
func (t *Tracker) OnCapture(ctx context.Context, samples []int16, ts time.Duration, pol Policy) (Point, bool, error) {
	t.mu.Lock()
	frame, ok := t.asm.Push(samples, ts)
	elapsed := t.asm.Elapsed(ts)
	gen := t.generation
	if ok {
		t.stats.Frames++
	}
	t.mu.Unlock()
	if !ok {
		return Point{}, false, nil
	}
	t.metrics.FramesAssembled.Add(ctx, 1)

	pred, err := t.analyse(ctx, &frame)
	if err != nil {
		reason := observe.DropInference
		if ctx.Err() != nil {
			reason = observe.DropCanceled
		}
		t.metrics.RecordFrameDropped(ctx, reason)
		t.mu.Lock()
		t.stats.Dropped++
		t.mu.Unlock()
		observe.Logger(ctx).Debug("frame dropped", "reason", reason, "elapsed", elapsed, "err", err)
		return Point{}, false, err
	}

	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return Point{}, false, nil
	}
	// Capture timestamps can jitter backwards; the series must not.
	elapsed = max(elapsed, t.lastElapsed)
	pt, emitted := t.agg.Submit(pred, elapsed, pol)
	if emitted {
		t.appendLocked(pt)
	}
	t.mu.Unlock()

	if emitted {
		t.metrics.RecordPoint(ctx, pt.Valid())
	}
	return pt, emitted, nil
}

func (t *Tracker) analyse(ctx context.Context, frame *crepe.Frame) (crepe.Prediction, error) {
	features := crepe.Normalize(frame)

	start := time.Now()
	act, err := t.engine.Infer(ctx, features[:])
	t.metrics.RecordInference(ctx, t.engineName, time.Since(start), err)
	if err != nil {
		if !errors.Is(err, pitch.ErrInference) {
			err = pitch.Wrap(t.engineName, err)
		}
		return crepe.Prediction{}, err
	}
	return t.decoder.Decode(&act), nil
}

func (t *Tracker) appendLocked(pt Point) {
	t.series = append(t.series, pt)
	t.lastElapsed = pt.Elapsed
	if pt.Valid() {
		t.lastGood, t.hasGood = pt.Value, true
	}
	if t.maxPoints > 0 && len(t.series) > t.maxPoints {
		drop := len(t.series) - t.maxPoints
		t.series = append(t.series[:0:0], t.series[drop:]...)
	}
}

// Snapshot returns a copy of the whole series.
func (t *Tracker) Snapshot() []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Point(nil), t.series...)
}

// Since returns a copy of the points with Elapsed strictly after sec.
func (t *Tracker) Since(sec float64) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := sort.Search(len(t.series), func(i int) bool { return t.series[i].Elapsed > sec })
	return append([]Point(nil), t.series[i:]...)
}

// Window returns the points of the last span seconds, measured back from the
// newest point, together with the window end. An empty series yields the
// window (0, span].
func (t *Tracker) Window(span float64) (points []Point, end float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.series) == 0 {
		return nil, span
	}
	end = t.series[len(t.series)-1].Elapsed
	i := sort.Search(len(t.series), func(i int) bool { return t.series[i].Elapsed >= end-span })
	return append([]Point(nil), t.series[i:]...), end
}

// LastGood returns the most recent non-NaN value of the current session.
func (t *Tracker) LastGood() (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGood, t.hasGood
}

// Session returns the current session. The zero value means no session was
// ever started.
func (t *Tracker) Session() Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// Stats returns the counters of the current session.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.stats
	s.Points = len(t.series)
	s.Buffered = t.asm.Buffered()
	return s
}

// Mode returns the active aggregation mode and window.
func (t *Tracker) Mode() (Mode, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.agg.Mode(), t.agg.Steps()
}

// LogValue implements slog.LogValuer.
func (t *Tracker) LogValue() slog.Value {
	s := t.Session()
	st := t.Stats()
	return slog.GroupValue(
		slog.String("session", s.ID),
		slog.String("device", s.Device),
		slog.Bool("active", s.Active),
		slog.Uint64("frames", st.Frames),
		slog.Uint64("dropped", st.Dropped),
		slog.Int("points", st.Points),
	)
}
