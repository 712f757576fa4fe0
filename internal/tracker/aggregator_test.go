package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/pitchtrace/internal/crepe"
)

var defaultPolicy = Policy{ConfidenceThreshold: 0.5, MinHz: 50, MaxHz: 500}

func pred(hz, conf float32) crepe.Prediction {
	return crepe.Prediction{Frequency: hz, Confidence: conf}
}

func TestAggregator_AverageOfSurvivors(t *testing.T) {
	t.Parallel()
	a := NewAggregator(ModeAverage, 2)

	_, ok := a.Submit(pred(200, 0.9), 0.064, defaultPolicy)
	require.False(t, ok)
	assert.Equal(t, 1, a.Pending())

	p, ok := a.Submit(pred(220, 0.8), 0.128, defaultPolicy)
	require.True(t, ok)
	assert.InDelta(t, 210, p.Value, 1e-9)
	assert.Equal(t, 0.128, p.Elapsed)
	assert.Equal(t, 0, a.Pending())
}

func TestAggregator_AverageFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		preds []crepe.Prediction
		want  float64
	}{
		{"low confidence dropped", []crepe.Prediction{pred(200, 0.9), pred(300, 0.2)}, 200},
		{"out of range dropped", []crepe.Prediction{pred(40, 0.9), pred(240, 0.9)}, 240},
		{"above range dropped", []crepe.Prediction{pred(501, 0.9), pred(240, 0.9)}, 240},
		{"bounds inclusive", []crepe.Prediction{pred(50, 0.9), pred(500, 0.9)}, 275},
		{"threshold inclusive", []crepe.Prediction{pred(100, 0.5), pred(100, 0.5)}, 100},
		{"NaN dropped", []crepe.Prediction{pred(float32(math.NaN()), 0.9), pred(180, 0.9)}, 180},
		{"none survive", []crepe.Prediction{pred(200, 0.1), pred(float32(math.NaN()), 1)}, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewAggregator(ModeAverage, len(tt.preds))
			var (
				p  Point
				ok bool
			)
			for i, q := range tt.preds {
				p, ok = a.Submit(q, float64(i), defaultPolicy)
			}
			require.True(t, ok)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(p.Value), "got %v", p.Value)
				return
			}
			assert.InDelta(t, tt.want, p.Value, 1e-4)
		})
	}
}

func TestAggregator_PerFrame(t *testing.T) {
	t.Parallel()
	a := NewAggregator(ModePerFrame, 5)

	p, ok := a.Submit(pred(1200, 0.9), 1, defaultPolicy)
	require.True(t, ok)
	assert.InDelta(t, 1200, p.Value, 1e-4, "per-frame mode does not apply the display range")

	p, ok = a.Submit(pred(220, 0.49), 2, defaultPolicy)
	require.True(t, ok)
	assert.False(t, p.Valid())
}

func TestAggregator_Reset(t *testing.T) {
	t.Parallel()
	a := NewAggregator(ModeAverage, 3)
	a.Submit(pred(200, 1), 0, defaultPolicy)
	a.Submit(pred(200, 1), 0, defaultPolicy)
	a.Reset()

	_, ok := a.Submit(pred(200, 1), 0, defaultPolicy)
	assert.False(t, ok, "window must restart after Reset")
}

func TestNewAggregator_DefaultSteps(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultStepsPerDisplay, NewAggregator(ModeAverage, 0).Steps())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": ModeAverage, "average": ModeAverage, "per_frame": ModePerFrame} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("median")
	assert.Error(t, err)
}
