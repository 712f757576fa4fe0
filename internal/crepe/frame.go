package crepe

import "time"

// Frame is one analysis frame of exactly [StepSize] samples.
type Frame [StepSize]int16

// Assembler accumulates arbitrarily sized capture chunks into analysis frames.
//
// Freshness beats completeness: once StepSize samples are buffered, the most
// recent StepSize samples form the frame and everything else is discarded.
// This bounds latency when inference is slower than capture.
//
// The zero value is ready to use. An Assembler is not safe for concurrent use;
// [tracker.Tracker] guards it together with the rest of the session state.
type Assembler struct {
	residual []int16

	origin    time.Duration
	hasOrigin bool
}

// Push appends samples captured at ts. On the first call of a session ts
// becomes the stream clock origin. It returns a frame when at least StepSize
// samples are buffered; otherwise it keeps the samples for the next call.
func (a *Assembler) Push(samples []int16, ts time.Duration) (Frame, bool) {
	if !a.hasOrigin {
		a.origin = ts
		a.hasOrigin = true
	}

	a.residual = append(a.residual, samples...)
	n := len(a.residual)
	if n < StepSize {
		return Frame{}, false
	}

	var f Frame
	copy(f[:], a.residual[n-StepSize:])
	a.residual = a.residual[:0]
	return f, true
}

// Buffered returns how many samples are waiting for the next frame.
func (a *Assembler) Buffered() int {
	return len(a.residual)
}

// Origin returns the stream clock origin and whether it has been set.
func (a *Assembler) Origin() (time.Duration, bool) {
	return a.origin, a.hasOrigin
}

// Elapsed returns the seconds between the stream clock origin and ts. A
// timestamp before the origin (or an unset clock) yields zero.
func (a *Assembler) Elapsed(ts time.Duration) float64 {
	if !a.hasOrigin || ts < a.origin {
		return 0
	}
	return (ts - a.origin).Seconds()
}

// Reset clears buffered samples and the stream clock. Called when a capture
// session is torn down.
func (a *Assembler) Reset() {
	a.residual = a.residual[:0]
	a.origin = 0
	a.hasOrigin = false
}
