package crepe

import (
	"fmt"
	"math"
)

// a4 is the reference tuning in Hz.
const a4 = 440.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note is the nearest equal-tempered note to a frequency.
type Note struct {
	Name   string
	Octave int
	// Cents is the deviation from the note, in [-50, 50].
	Cents float64
}

// String formats n as e.g. "A4 +12¢".
func (n Note) String() string {
	return fmt.Sprintf("%s%d %+.0f¢", n.Name, n.Octave, n.Cents)
}

// NearestNote returns the note closest to hz. ok is false for non-positive or
// non-finite input.
func NearestNote(hz float64) (n Note, ok bool) {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return Note{}, false
	}
	semitones := 12 * math.Log2(hz/a4)
	rounded := math.Round(semitones)

	// MIDI 69 is A4.
	midi := int(rounded) + 69
	idx := ((midi % 12) + 12) % 12
	octave := midi/12 - 1
	if midi < 0 && midi%12 != 0 {
		octave--
	}
	return Note{
		Name:   noteNames[idx],
		Octave: octave,
		Cents:  100 * (semitones - rounded),
	}, true
}
