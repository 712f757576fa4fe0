package crepe

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(from, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(from + i)
	}
	return s
}

func TestAssembler_AccumulatesUntilFull(t *testing.T) {
	t.Parallel()
	var a Assembler

	_, ok := a.Push(ramp(0, 500), 0)
	require.False(t, ok)
	assert.Equal(t, 500, a.Buffered())

	_, ok = a.Push(ramp(500, 500), 10*time.Millisecond)
	require.False(t, ok)

	f, ok := a.Push(ramp(1000, 100), 20*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, 0, a.Buffered())

	// 1100 samples buffered, the latest 1024 are 76..1099.
	assert.Equal(t, int16(76), f[0])
	assert.Equal(t, int16(1099), f[StepSize-1])
}

func TestAssembler_ExactFrame(t *testing.T) {
	t.Parallel()
	var a Assembler

	f, ok := a.Push(ramp(0, StepSize), 0)
	require.True(t, ok)
	assert.Equal(t, int16(0), f[0])
	assert.Equal(t, 0, a.Buffered())
}

func TestAssembler_OversizedChunkKeepsNewest(t *testing.T) {
	t.Parallel()
	var a Assembler

	f, ok := a.Push(ramp(0, 2*StepSize), 0)
	require.True(t, ok)
	assert.Equal(t, int16(StepSize), f[0])
	assert.Equal(t, int16(2*StepSize-1), f[StepSize-1])
	assert.Equal(t, 0, a.Buffered())

	_, ok = a.Push(nil, time.Second)
	assert.False(t, ok)
}

func TestAssembler_Clock(t *testing.T) {
	t.Parallel()
	var a Assembler

	assert.Zero(t, a.Elapsed(time.Second))

	a.Push(ramp(0, 10), 2*time.Second)
	origin, ok := a.Origin()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, origin)

	assert.InDelta(t, 1.5, a.Elapsed(3500*time.Millisecond), 1e-9)
	assert.Zero(t, a.Elapsed(time.Second), "timestamps before origin clamp to zero")

	a.Reset()
	_, ok = a.Origin()
	assert.False(t, ok)
	assert.Equal(t, 0, a.Buffered())
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("silent frame", func(t *testing.T) {
		t.Parallel()
		var f Frame
		feat := Normalize(&f)
		for i, v := range feat {
			require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "index %d", i)
			require.Zero(t, v)
		}
	})

	t.Run("constant frame", func(t *testing.T) {
		t.Parallel()
		var f Frame
		for i := range f {
			f[i] = 1234
		}
		feat := Normalize(&f)
		for _, v := range feat {
			require.Zero(t, v)
		}
	})

	t.Run("zero mean unit variance", func(t *testing.T) {
		t.Parallel()
		var f Frame
		for i := range f {
			f[i] = int16(8000 * math.Sin(2*math.Pi*220*float64(i)/SampleRate))
		}
		feat := Normalize(&f)

		var sum, sq float64
		for _, v := range feat {
			sum += float64(v)
			sq += float64(v) * float64(v)
		}
		mean := sum / StepSize
		assert.InDelta(t, 0, mean, 1e-4)
		assert.InDelta(t, 1, sq/StepSize-mean*mean, 1e-3)
	})
}

func TestNormalize_Deterministic(t *testing.T) {
	t.Parallel()

	var f Frame
	for i := range f {
		f[i] = int16((i*7919)%65536 - 32768)
	}
	a := Normalize(&f)
	b := Normalize(&f)
	for i := range a {
		require.Equal(t, math.Float32bits(a[i]), math.Float32bits(b[i]), "index %d", i)
	}
}
