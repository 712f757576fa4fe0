package crepe

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

// windowRadius is the number of bins on each side of the peak that contribute
// to the local average.
const windowRadius = 4

// Decoder turns activation vectors into predictions using the local weighted
// average around the activation peak. A Decoder is immutable and safe for
// concurrent use.
type Decoder struct {
	cents *CentsMapping
}

// NewDecoder returns a Decoder using the shared cents table for spacing s.
func NewDecoder(s Spacing) (*Decoder, error) {
	m, err := Mapping(s)
	if err != nil {
		return nil, err
	}
	return &Decoder{cents: m}, nil
}

// Cents returns the mapping the decoder uses.
func (d *Decoder) Cents() *CentsMapping {
	return d.cents
}

// Decode estimates the pitch encoded in act.
//
// The confidence is the raw peak activation. The numerator of the cents
// average only covers the ±4 bins around the peak while the denominator is the
// activation mass of the whole vector; both are kept as the model was
// evaluated that way. An all-zero vector decodes to a NaN frequency.
func (d *Decoder) Decode(act *pitch.Activation) Prediction {
	w := make([]float64, ActivationSize)
	for i, v := range act {
		w[i] = float64(v)
	}

	center := floats.MaxIdx(w)
	lo, hi := localWindow(center)

	product := floats.Dot(w[lo:hi], d.cents[lo:hi])
	total := floats.Sum(w)

	freq := math.NaN()
	if total != 0 {
		freq = CentsToHz(product / total)
		if math.IsInf(freq, 0) {
			freq = math.NaN()
		}
	}

	return Prediction{
		Frequency:  float32(freq),
		Confidence: act[center],
	}
}

// localWindow returns the half-open bin range [lo, hi) averaged around center,
// clipped to the activation bounds.
func localWindow(center int) (lo, hi int) {
	lo = max(0, center-windowRadius)
	hi = min(ActivationSize, center+windowRadius+1)
	return lo, hi
}
