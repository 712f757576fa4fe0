package crepe

import (
	"fmt"
	"sync"
)

const (
	// centsOffset is the cents value of bin 0 in the model's training setup.
	centsOffset = 1997.3794084376191

	// centsSpan is the distance in cents between the first and last bin.
	centsSpan = 7180.0
)

// Spacing selects how the distance between two adjacent bins is derived.
type Spacing string

const (
	// SpacingLinspace spreads centsSpan over the 359 gaps between 360 bins,
	// giving exactly 20 cents per bin.
	SpacingLinspace Spacing = "linspace"

	// SpacingSpan divides centsSpan by the bin count (~19.94 cents per bin).
	SpacingSpan Spacing = "span"
)

// IsValid reports whether s is a recognised spacing.
func (s Spacing) IsValid() bool {
	return s == SpacingLinspace || s == SpacingSpan
}

// Step returns the cents distance between two adjacent bins.
func (s Spacing) Step() float64 {
	if s == SpacingSpan {
		return centsSpan / ActivationSize
	}
	return centsSpan / (ActivationSize - 1)
}

// CentsMapping maps a bin index to its cents value. Tables are built once per
// process and shared; callers must treat them as read-only.
type CentsMapping [ActivationSize]float64

var (
	linspaceMapping = sync.OnceValue(func() *CentsMapping { return buildMapping(SpacingLinspace) })
	spanMapping     = sync.OnceValue(func() *CentsMapping { return buildMapping(SpacingSpan) })
)

// Mapping returns the process-wide table for spacing s. An empty spacing
// selects [SpacingLinspace].
func Mapping(s Spacing) (*CentsMapping, error) {
	switch s {
	case "", SpacingLinspace:
		return linspaceMapping(), nil
	case SpacingSpan:
		return spanMapping(), nil
	}
	return nil, fmt.Errorf("crepe: unknown cents spacing %q", s)
}

func buildMapping(s Spacing) *CentsMapping {
	var m CentsMapping
	step := s.Step()
	for i := range m {
		m[i] = float64(i)*step + centsOffset
	}
	return &m
}

// Hz returns the frequency of bin i.
func (m *CentsMapping) Hz(i int) float64 {
	return CentsToHz(m[i])
}
