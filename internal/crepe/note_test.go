package crepe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestNote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hz     float64
		name   string
		octave int
	}{
		{440, "A", 4},
		{261.63, "C", 4},
		{220, "A", 3},
		{246.94, "B", 3},
		{32.70, "C", 1},
		{277.18, "C#", 4},
	}
	for _, tt := range tests {
		n, ok := NearestNote(tt.hz)
		require.True(t, ok, "hz %v", tt.hz)
		assert.Equal(t, tt.name, n.Name, "hz %v", tt.hz)
		assert.Equal(t, tt.octave, n.Octave, "hz %v", tt.hz)
		assert.LessOrEqual(t, math.Abs(n.Cents), 50.0)
	}
}

func TestNearestNote_Deviation(t *testing.T) {
	t.Parallel()

	n, ok := NearestNote(CentsToHz(HzToCents(440) + 12))
	require.True(t, ok)
	assert.Equal(t, "A4 +12¢", n.String())
}

func TestNearestNote_Invalid(t *testing.T) {
	t.Parallel()

	for _, hz := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, ok := NearestNote(hz)
		assert.False(t, ok, "hz %v", hz)
	}
}
