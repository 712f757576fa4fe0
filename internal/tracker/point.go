package tracker

import (
	"encoding/json"
	"math"
)

// Point is one entry of the pitch series.
type Point struct {
	// Elapsed is the time in seconds since the session's first sample.
	Elapsed float64

	// Value is the frequency in Hz, or NaN when no pitch was accepted.
	Value float64
}

// Valid reports whether the point carries a frequency.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Value)
}

type pointJSON struct {
	Elapsed float64  `json:"t"`
	Value   *float64 `json:"hz"`
}

// MarshalJSON encodes p as {"t":…,"hz":…} with NaN as null.
func (p Point) MarshalJSON() ([]byte, error) {
	out := pointJSON{Elapsed: p.Elapsed}
	if p.Valid() && !math.IsInf(p.Value, 0) {
		v := p.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (p *Point) UnmarshalJSON(data []byte) error {
	var in pointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Elapsed = in.Elapsed
	p.Value = math.NaN()
	if in.Value != nil {
		p.Value = *in.Value
	}
	return nil
}
