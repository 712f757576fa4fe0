package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// AudioFrame is one chunk of captured audio as delivered by a [Stream].
type AudioFrame struct {
	// Samples holds interleaved signed 16-bit PCM.
	Samples []int16

	// SampleRate in Hz (e.g. 48000 for a browser microphone, 16000 for the
	// pitch model).
	SampleRate int

	// Channels is the number of interleaved channels in Samples.
	Channels int

	// Timestamp is the capture clock reading of the first sample, relative to
	// an origin chosen by the device.
	Timestamp time.Duration
}

// Duration returns the playback length of f.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	n := len(f.Samples) / f.Channels
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// DecodePCM16 converts little-endian signed 16-bit PCM bytes to samples. A
// trailing odd byte is ignored.
func DecodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// EncodePCM16 converts samples to little-endian signed 16-bit PCM bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
