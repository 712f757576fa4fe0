package crepe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(SpacingLinspace)
	require.NoError(t, err)
	return d
}

func TestDecode_SingleBin(t *testing.T) {
	t.Parallel()
	d := newTestDecoder(t)

	for _, k := range []int{0, 17, 180, 359} {
		var act pitch.Activation
		act[k] = 1

		p := d.Decode(&act)
		assert.InDelta(t, CentsToHz(d.Cents()[k]), float64(p.Frequency), 1e-2, "bin %d", k)
		assert.Equal(t, float32(1), p.Confidence, "bin %d", k)
	}
}

func TestDecode_TieBreakPicksLowerIndex(t *testing.T) {
	t.Parallel()
	d := newTestDecoder(t)

	var act pitch.Activation
	act[100] = 0.8
	act[200] = 0.8

	p := d.Decode(&act)
	assert.Equal(t, float32(0.8), p.Confidence)

	// Only bin 100 falls into the window; the total covers both peaks.
	want := CentsToHz(0.8 * d.Cents()[100] / 1.6)
	assert.InDelta(t, want, float64(p.Frequency), 1e-3)
}

func TestDecode_AllZero(t *testing.T) {
	t.Parallel()
	d := newTestDecoder(t)

	var act pitch.Activation
	p := d.Decode(&act)
	assert.True(t, math.IsNaN(float64(p.Frequency)))
	assert.Equal(t, float32(0), p.Confidence)
	assert.False(t, p.Voiced())
}

func TestDecode_PeakWithFloor(t *testing.T) {
	t.Parallel()
	d := newTestDecoder(t)

	var act pitch.Activation
	for i := range act {
		act[i] = 0.01
	}
	act[180] = 0.9

	// Window sum uses bins 176..184; total is 0.9 + 359*0.01.
	var product float64
	for i := 176; i <= 184; i++ {
		product += float64(act[i]) * d.Cents()[i]
	}
	total := 0.9 + 359*float64(float32(0.01))
	want := CentsToHz(product / total)

	p := d.Decode(&act)
	assert.InDelta(t, want, float64(p.Frequency), 1e-2)
	assert.Equal(t, float32(0.9), p.Confidence)
	assert.True(t, p.Voiced())
}

func TestLocalWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		center, lo, hi int
	}{
		{0, 0, 5},
		{2, 0, 7},
		{180, 176, 185},
		{357, 353, 360},
		{359, 355, 360},
	}
	for _, tt := range tests {
		lo, hi := localWindow(tt.center)
		assert.Equal(t, tt.lo, lo, "center %d", tt.center)
		assert.Equal(t, tt.hi, hi, "center %d", tt.center)
	}
}

func TestNewDecoder_UnknownSpacing(t *testing.T) {
	t.Parallel()

	_, err := NewDecoder("log")
	require.Error(t, err)
}
