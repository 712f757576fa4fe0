package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// FormatConverter downmixes frames to mono and resamples them to a fixed
// target rate. Resampler state carries over between frames, so one
// converter must be used per stream and not shared across goroutines.
type FormatConverter struct {
	target int

	srcRate int
	rs      *resample.Resampler
	buf     []float64

	warnedMismatch sync.Once
}

// NewFormatConverter returns a converter producing mono frames at
// targetRate Hz.
func NewFormatConverter(targetRate int) *FormatConverter {
	return &FormatConverter{target: targetRate}
}

// Target returns the output format.
func (c *FormatConverter) Target() Format {
	return Format{SampleRate: c.target, Channels: 1}
}

// Convert returns frame in the target format. A frame that already matches is
// returned unchanged.
func (c *FormatConverter) Convert(frame AudioFrame) (AudioFrame, error) {
	if frame.SampleRate <= 0 || frame.Channels <= 0 {
		return AudioFrame{}, fmt.Errorf("audio: invalid source format %dHz/%dch", frame.SampleRate, frame.Channels)
	}
	if frame.SampleRate == c.target && frame.Channels == 1 {
		return frame, nil
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio: converting capture format",
			"from", Format{SampleRate: frame.SampleRate, Channels: frame.Channels}.String(),
			"to", c.Target().String(),
		)
	})

	samples := frame.Samples
	if frame.Channels > 1 {
		samples = Downmix(samples, frame.Channels)
	}
	if frame.SampleRate != c.target {
		var err error
		if samples, err = c.resample(samples, frame.SampleRate); err != nil {
			return AudioFrame{}, err
		}
	}

	return AudioFrame{
		Samples:    samples,
		SampleRate: c.target,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}, nil
}

func (c *FormatConverter) resample(samples []int16, rate int) ([]int16, error) {
	if c.rs == nil || c.srcRate != rate {
		rs, err := resample.NewForRates(float64(rate), float64(c.target),
			resample.WithQuality(resample.QualityBalanced))
		if err != nil {
			return nil, fmt.Errorf("audio: resampler %d→%d Hz: %w", rate, c.target, err)
		}
		c.rs, c.srcRate = rs, rate
	}

	c.buf = c.buf[:0]
	for _, s := range samples {
		c.buf = append(c.buf, float64(s))
	}
	y := c.rs.Process(c.buf)

	out := make([]int16, len(y))
	for i, v := range y {
		out[i] = clamp16(v)
	}
	return out, nil
}

// Reset clears resampler history. Call it when the source restarts.
func (c *FormatConverter) Reset() {
	if c.rs != nil {
		c.rs.Reset()
	}
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// ConvertStream wraps in with a conversion goroutine producing mono frames at
// targetRate. The returned channel is closed when in closes. Frames that fail
// conversion or come out empty are dropped.
func ConvertStream(in <-chan AudioFrame, targetRate int) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := NewFormatConverter(targetRate)
		var warned sync.Once
		for frame := range in {
			converted, err := conv.Convert(frame)
			if err != nil {
				warned.Do(func() { slog.Warn("audio: dropping unconvertible frames", "err", err) })
				continue
			}
			if len(converted.Samples) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}
