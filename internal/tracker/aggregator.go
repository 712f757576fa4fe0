package tracker

import (
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/pitchtrace/internal/crepe"
)

// DefaultStepsPerDisplay is the averaging window when none is configured.
const DefaultStepsPerDisplay = 2

// Aggregator turns a stream of predictions into points according to a
// [Mode]. It is not safe for concurrent use.
type Aggregator struct {
	mode    Mode
	steps   int
	pending []crepe.Prediction
	buf     []float64
}

// NewAggregator returns an Aggregator. steps is the averaging window and is
// ignored in [ModePerFrame]; values below one fall back to
// [DefaultStepsPerDisplay].
func NewAggregator(mode Mode, steps int) *Aggregator {
	if steps < 1 {
		steps = DefaultStepsPerDisplay
	}
	return &Aggregator{
		mode:    mode,
		steps:   steps,
		pending: make([]crepe.Prediction, 0, steps),
		buf:     make([]float64, 0, steps),
	}
}

// Mode returns the aggregation mode.
func (a *Aggregator) Mode() Mode { return a.mode }

// Steps returns the averaging window.
func (a *Aggregator) Steps() int { return a.steps }

// Submit feeds one prediction observed at elapsed seconds. It returns a point
// when one is due.
func (a *Aggregator) Submit(p crepe.Prediction, elapsed float64, pol Policy) (Point, bool) {
	if a.mode == ModePerFrame {
		v := nan
		if pol.Confident(p) && p.Voiced() {
			v = float64(p.Frequency)
		}
		return Point{Elapsed: elapsed, Value: v}, true
	}

	a.pending = append(a.pending, p)
	if len(a.pending) < a.steps {
		return Point{}, false
	}

	a.buf = a.buf[:0]
	for _, q := range a.pending {
		if pol.Confident(q) && pol.InRange(q) {
			a.buf = append(a.buf, float64(q.Frequency))
		}
	}
	a.pending = a.pending[:0]

	v := nan
	if len(a.buf) > 0 {
		v = stat.Mean(a.buf, nil)
	}
	return Point{Elapsed: elapsed, Value: v}, true
}

// Pending returns the number of predictions waiting for the window to fill.
func (a *Aggregator) Pending() int { return len(a.pending) }

// Reset drops pending predictions.
func (a *Aggregator) Reset() {
	a.pending = a.pending[:0]
}
