package display

import (
	"fmt"
	"math"

	"github.com/MrWong99/pitchtrace/internal/crepe"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// Label texts shown over the chart.
const (
	LabelNoDevice = "No device selected."
	LabelWaiting  = "Waiting for audio data..."
)

// Label returns the headline text: the last good frequency truncated to
// whole Hz, or a placeholder depending on whether a device is capturing.
func Label(lastGood float64, ok, deviceActive bool) string {
	switch {
	case ok:
		return fmt.Sprintf("%dHz", uint32(max(lastGood, 0)))
	case deviceActive:
		return LabelWaiting
	default:
		return LabelNoDevice
	}
}

// NoteInfo is the nearest note to the last good frequency.
type NoteInfo struct {
	Name   string  `json:"name"`
	Octave int     `json:"octave"`
	Cents  float64 `json:"cents"`
	Text   string  `json:"text"`
}

// Status is the body of GET /api/status.
type Status struct {
	Label   string          `json:"label"`
	Hz      *float64        `json:"hz"`
	Note    *NoteInfo       `json:"note,omitempty"`
	Session tracker.Session `json:"session"`
	Stats   tracker.Stats   `json:"stats"`
	Mode    tracker.Mode    `json:"mode"`
	Steps   int             `json:"steps_per_display"`
}

// BuildStatus reads the current state of src.
func BuildStatus(src Source) Status {
	hz, ok := src.LastGood()
	sess := src.Session()
	mode, steps := src.Mode()

	st := Status{
		Label:   Label(hz, ok, sess.Active),
		Session: sess,
		Stats:   src.Stats(),
		Mode:    mode,
		Steps:   steps,
	}
	if ok && !math.IsInf(hz, 0) {
		st.Hz = &hz
		if n, ok := crepe.NearestNote(hz); ok {
			st.Note = &NoteInfo{Name: n.Name, Octave: n.Octave, Cents: math.Round(n.Cents*10) / 10, Text: n.String()}
		}
	}
	return st
}
