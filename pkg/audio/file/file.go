// Package file implements an [audio.Device] that replays audio from a file
// or standard input.
//
// Two formats are understood: RIFF/WAVE files (decoded with
// github.com/go-audio/wav) and headerless little-endian signed 16-bit PCM,
// whose sample rate and channel count come from [Config]. Standard input
// ("-") is always read as raw PCM.
//
// A Device produces exactly one capture session. With Loop set the file is
// rewound at its end and the session clock keeps running; otherwise the
// session ends at end of file and the next Open returns
// [audio.ErrDeviceClosed].
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/pitchtrace/pkg/audio"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Config configures a file device.
type Config struct {
	// Path of the file to read, or [Stdin].
	Path string

	// SampleRate and Channels describe raw PCM input. WAV files carry their
	// own format. Defaults: 16000 Hz, mono.
	SampleRate int
	Channels   int

	// Realtime paces delivery to the audio clock instead of reading as fast
	// as the consumer allows.
	Realtime bool

	// Loop restarts the file at its end. Ignored for [Stdin].
	Loop bool

	// ChunkSamples is the number of sample frames per delivered chunk.
	// Default: 512.
	ChunkSamples int
}

// Device replays a file as one capture session.
type Device struct {
	cfg   Config
	stdin io.Reader

	mu     sync.Mutex
	opened bool
}

var _ audio.Device = (*Device)(nil)

// New validates cfg and returns a Device. The file itself is opened lazily by
// [Device.Open].
func New(cfg Config) (*Device, error) {
	if cfg.Path == "" {
		return nil, errors.New("file: path must not be empty")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkSamples == 0 {
		cfg.ChunkSamples = 512
	}
	if cfg.SampleRate < 0 || cfg.Channels < 0 || cfg.ChunkSamples < 0 {
		return nil, fmt.Errorf("file: invalid format %dHz/%dch, chunk %d", cfg.SampleRate, cfg.Channels, cfg.ChunkSamples)
	}
	return &Device{cfg: cfg, stdin: os.Stdin}, nil
}

// Name implements [audio.Device].
func (d *Device) Name() string {
	if d.cfg.Path == Stdin {
		return "file:stdin"
	}
	return "file:" + filepath.Base(d.cfg.Path)
}

// Open implements [audio.Device]. The first call starts the session; later
// calls return [audio.ErrDeviceClosed].
func (d *Device) Open(ctx context.Context) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil, audio.ErrDeviceClosed
	}

	src, err := d.openSource()
	if err != nil {
		return nil, err
	}
	d.opened = true

	s := &stream{
		frames: make(chan audio.AudioFrame, 8),
		done:   make(chan struct{}),
		src:    src,
		cfg:    d.cfg,
	}
	go s.run()

	slog.Info("file capture started", "path", d.cfg.Path, "format", src.format().String(), "realtime", d.cfg.Realtime, "loop", d.cfg.Loop)
	return s, nil
}

func (d *Device) openSource() (source, error) {
	if d.cfg.Path == Stdin {
		return &rawSource{
			r:   bufio.NewReader(d.stdin),
			fmt: audio.Format{SampleRate: d.cfg.SampleRate, Channels: d.cfg.Channels},
		}, nil
	}

	f, err := os.Open(d.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	if isWAV(f, d.cfg.Path) {
		src, err := newWAVSource(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return src, nil
	}
	return &rawSource{
		r:   bufio.NewReader(f),
		f:   f,
		fmt: audio.Format{SampleRate: d.cfg.SampleRate, Channels: d.cfg.Channels},
	}, nil
}

// isWAV sniffs the RIFF/WAVE header, falling back to the extension when the
// file is too short to tell.
func isWAV(f *os.File, path string) bool {
	var hdr [12]byte
	n, _ := io.ReadFull(f, hdr[:])
	_, _ = f.Seek(0, io.SeekStart)
	if n == len(hdr) {
		return bytes.Equal(hdr[0:4], []byte("RIFF")) && bytes.Equal(hdr[8:12], []byte("WAVE"))
	}
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// source yields interleaved int16 samples.
type source interface {
	format() audio.Format
	// read fills buf and returns the number of samples written. It returns
	// io.EOF once no samples are left.
	read(buf []int16) (int, error)
	rewind() error
	close() error
}

type rawSource struct {
	r     *bufio.Reader
	f     *os.File // nil for stdin
	fmt   audio.Format
	bytes []byte
}

func (s *rawSource) format() audio.Format { return s.fmt }

func (s *rawSource) read(buf []int16) (int, error) {
	if cap(s.bytes) < 2*len(buf) {
		s.bytes = make([]byte, 2*len(buf))
	}
	b := s.bytes[:2*len(buf)]
	n, err := io.ReadFull(s.r, b)
	if n >= 2 {
		copy(buf, audio.DecodePCM16(b[:n&^1]))
		return n / 2, nil
	}
	if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return 0, err
}

func (s *rawSource) rewind() error {
	if s.f == nil {
		return errors.New("file: input is not seekable")
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.r.Reset(s.f)
	return nil
}

func (s *rawSource) close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

type wavSource struct {
	f   *os.File
	dec *wav.Decoder
	fmt audio.Format
	buf *goaudio.IntBuffer
}

func newWAVSource(f *os.File) (*wavSource, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("file: %s is not a valid WAV file", f.Name())
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("file: unsupported WAV bit depth %d", dec.BitDepth)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("file: unsupported WAV encoding %d (want PCM)", dec.WavAudioFormat)
	}
	return &wavSource{
		f:   f,
		dec: dec,
		fmt: audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
	}, nil
}

func (s *wavSource) format() audio.Format { return s.fmt }

func (s *wavSource) read(buf []int16) (int, error) {
	if s.buf == nil || len(s.buf.Data) != len(buf) {
		s.buf = &goaudio.IntBuffer{Data: make([]int, len(buf))}
	}
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, fmt.Errorf("file: decode WAV: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	depth := int(s.dec.BitDepth)
	for i, v := range s.buf.Data[:n] {
		buf[i] = toInt16(v, depth)
	}
	return n, nil
}

// toInt16 scales a decoded WAV sample to 16 bits. 8-bit WAV is unsigned.
func toInt16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	}
	return int16(v)
}

func (s *wavSource) rewind() error {
	if err := s.dec.Rewind(); err != nil {
		return fmt.Errorf("file: rewind WAV: %w", err)
	}
	return nil
}

func (s *wavSource) close() error { return s.f.Close() }

// stream delivers a source as an [audio.Stream].
type stream struct {
	frames chan audio.AudioFrame
	done   chan struct{}
	src    source
	cfg    Config

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (s *stream) Frames() <-chan audio.AudioFrame { return s.frames }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *stream) run() {
	defer close(s.frames)
	defer s.src.close()

	format := s.src.format()
	chunk := s.cfg.ChunkSamples * format.Channels
	loop := s.cfg.Loop && s.cfg.Path != Stdin

	start := time.Now()
	var pos int64 // sample frames delivered so far
	for {
		buf := make([]int16, chunk)
		n, err := s.src.read(buf)
		if errors.Is(err, io.EOF) {
			if !loop {
				return
			}
			if err := s.src.rewind(); err != nil {
				s.fail(err)
				return
			}
			if n, err = s.src.read(buf); err != nil {
				// Empty file: nothing to loop over.
				if !errors.Is(err, io.EOF) {
					s.fail(err)
				}
				return
			}
		} else if err != nil {
			s.fail(err)
			return
		}

		ts := time.Duration(pos) * time.Second / time.Duration(format.SampleRate)
		if s.cfg.Realtime && !s.sleepUntil(start.Add(ts)) {
			return
		}

		frame := audio.AudioFrame{
			Samples:    buf[:n-n%format.Channels],
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Timestamp:  ts,
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
		pos += int64(n / format.Channels)
	}
}

func (s *stream) sleepUntil(t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		select {
		case <-s.done:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	slog.Warn("file capture failed", "path", s.cfg.Path, "err", err)
}
