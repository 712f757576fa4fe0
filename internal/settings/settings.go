// Package settings holds the user-facing display and acceptance settings that
// persist between runs.
//
// The record is stored as JSON under [Key]. A missing or unreadable record
// yields [Defaults]; every value read or written passes through
// [Settings.Normalize].
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// Key is the storage key of the settings record.
const Key = "settings"

// Slider bounds of the range endpoints, in Hz.
const (
	MaxLower = 499
	MaxUpper = 500
)

// Range is an inclusive frequency range in whole Hz, encoded as [lower, upper].
type Range [2]uint32

// Lower returns the lower bound.
func (r Range) Lower() uint32 { return r[0] }

// Upper returns the upper bound.
func (r Range) Upper() uint32 { return r[1] }

// Width returns upper - lower.
func (r Range) Width() uint32 { return r[1] - r[0] }

// normalize clamps both ends to the slider bounds and forces lower < upper.
func (r Range) normalize() Range {
	r[0] = min(r[0], MaxLower)
	r[1] = max(min(r[1], MaxUpper), 1)
	if r[0] >= r[1] {
		r[1] = r[0] + 1
	}
	return r
}

// RGBA is a linear-space, non-premultiplied colour with components in [0, 1],
// encoded as [r, g, b, a].
type RGBA [4]float32

// Colours shared with the defaults.
var (
	// LightGreen is sRGB (144, 238, 144) in linear space.
	LightGreen = FromSRGB(144, 238, 144, 255)
	White      = RGBA{1, 1, 1, 1}
)

// FromSRGB converts 8-bit sRGB components into a linear [RGBA].
func FromSRGB(r, g, b, a uint8) RGBA {
	return RGBA{srgbToLinear(r), srgbToLinear(g), srgbToLinear(b), float32(a) / 255}
}

func srgbToLinear(c uint8) float32 {
	v := float64(c) / 255
	if v <= 0.04045 {
		return float32(v / 12.92)
	}
	return float32(math.Pow((v+0.055)/1.055, 2.4))
}

func linearToSRGB(v float32) uint8 {
	x := math.Min(math.Max(float64(v), 0), 1)
	if x <= 0.0031308 {
		x *= 12.92
	} else {
		x = 1.055*math.Pow(x, 1/2.4) - 0.055
	}
	return uint8(math.Round(x * 255))
}

// Hex returns the colour as an sRGB "#rrggbb" string, ignoring alpha.
func (c RGBA) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", linearToSRGB(c[0]), linearToSRGB(c[1]), linearToSRGB(c[2]))
}

// CSS returns the colour as a CSS rgba() expression.
func (c RGBA) CSS() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.3g)", linearToSRGB(c[0]), linearToSRGB(c[1]), linearToSRGB(c[2]), clamp01(c[3]))
}

func (c RGBA) normalize() RGBA {
	for i := range c {
		c[i] = clamp01(c[i])
	}
	return c
}

func clamp01(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return min(max(v, 0), 1)
}

// Settings is the persisted record.
type Settings struct {
	// DisplayRange bounds the plot's y axis and, in averaging mode, the
	// accepted frequencies.
	DisplayRange Range `json:"display_range"`

	// TargetRange is the highlighted band the user aims for.
	TargetRange Range `json:"target_range"`

	ConfidenceThreshold float32 `json:"confidence_threshold"`

	TargetColor RGBA `json:"target_color"`
	LabelColor  RGBA `json:"label_color"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{
		DisplayRange:        Range{50, 500},
		TargetRange:         Range{185, 300},
		ConfidenceThreshold: 0.5,
		TargetColor:         LightGreen,
		LabelColor:          White,
	}
}

// Normalize returns s with both ranges ordered and clamped, the threshold in
// [0, 1], and colour components in [0, 1].
func (s Settings) Normalize() Settings {
	s.DisplayRange = s.DisplayRange.normalize()
	s.TargetRange = s.TargetRange.normalize()
	s.ConfidenceThreshold = clamp01(s.ConfidenceThreshold)
	s.TargetColor = s.TargetColor.normalize()
	s.LabelColor = s.LabelColor.normalize()
	return s
}

// Policy derives the acceptance policy used by the tracker.
func (s Settings) Policy() tracker.Policy {
	return tracker.Policy{
		ConfidenceThreshold: s.ConfidenceThreshold,
		MinHz:               float64(s.DisplayRange.Lower()),
		MaxHz:               float64(s.DisplayRange.Upper()),
	}
}

// Decode parses a stored record. Fields absent from data keep their default
// values; unparsable data yields [Defaults].
func Decode(data []byte) Settings {
	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("settings: stored record unreadable, using defaults", "err", err)
		return Defaults()
	}
	return s.Normalize()
}

// Encode serialises s after normalising it.
func (s Settings) Encode() ([]byte, error) {
	data, err := json.Marshal(s.Normalize())
	if err != nil {
		return nil, fmt.Errorf("settings: encode: %w", err)
	}
	return data, nil
}
