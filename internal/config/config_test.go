package config_test

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/pitchtrace/internal/config"
	"github.com/MrWong99/pitchtrace/pkg/audio"
	audiomock "github.com/MrWong99/pitchtrace/pkg/audio/mock"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
	pitchmock "github.com/MrWong99/pitchtrace/pkg/provider/pitch/mock"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
model:
  name: onnx
  path: models/crepe-full.onnx
  library_path: /usr/lib/libonnxruntime.so
  input: frames
  output: activation
  intra_op_threads: 2
  cents_spacing: span
  fallbacks:
    - name: onnx
      path: models/crepe-tiny.onnx
capture:
  name: file
  path: voice.wav
  sample_rate: 48000
  channels: 2
  realtime: false
  loop: true
  chunk_samples: 1024
tracking:
  mode: per_frame
  steps_per_display: 3
  max_points: 5000
storage:
  path: pitchtrace.db
  record_traces: true
resilience:
  max_failures: 3
  reset_timeout: 10s
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}

	m := cfg.Model
	if m.Name != "onnx" || m.Path != "models/crepe-full.onnx" || m.LibraryPath != "/usr/lib/libonnxruntime.so" {
		t.Errorf("model entry = %+v", m.EngineEntry)
	}
	if m.Input != "frames" || m.Output != "activation" || m.IntraOpThreads != 2 {
		t.Errorf("model bindings = %+v", m.EngineEntry)
	}
	if m.CentsSpacing != "span" {
		t.Errorf("cents_spacing = %q, want span", m.CentsSpacing)
	}
	if len(m.Fallbacks) != 1 || m.Fallbacks[0].Path != "models/crepe-tiny.onnx" {
		t.Fatalf("fallbacks = %+v", m.Fallbacks)
	}
	// Fallbacks get the same binding defaults as the primary.
	if m.Fallbacks[0].Input != config.DefaultInputName || m.Fallbacks[0].Output != config.DefaultOutputName {
		t.Errorf("fallback defaults not applied: %+v", m.Fallbacks[0])
	}

	c := cfg.Capture
	if c.Name != "file" || c.Path != "voice.wav" || c.SampleRate != 48000 || c.Channels != 2 {
		t.Errorf("capture = %+v", c)
	}
	if c.IsRealtime() {
		t.Error("realtime: false was not honoured")
	}
	if !c.Loop || c.ChunkSamples != 1024 {
		t.Errorf("capture loop/chunk = %v/%d", c.Loop, c.ChunkSamples)
	}

	if cfg.Tracking != (config.TrackingConfig{Mode: "per_frame", StepsPerDisplay: 3, MaxPoints: 5000}) {
		t.Errorf("tracking = %+v", cfg.Tracking)
	}
	if cfg.Storage != (config.StorageConfig{Path: "pitchtrace.db", RecordTraces: true}) {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 10*time.Second {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("model:\n  path: crepe.onnx\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Model.Name != "onnx" || cfg.Model.Input != "input" || cfg.Model.Output != "output_0" {
		t.Errorf("model = %+v", cfg.Model.EngineEntry)
	}
	if cfg.Model.IntraOpThreads != 1 {
		t.Errorf("intra_op_threads = %d, want 1", cfg.Model.IntraOpThreads)
	}
	if cfg.Model.CentsSpacing != "linspace" {
		t.Errorf("cents_spacing = %q, want linspace", cfg.Model.CentsSpacing)
	}
	if cfg.Capture.Name != "browser" || cfg.Capture.SampleRate != 16000 || cfg.Capture.Channels != 1 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if !cfg.Capture.IsRealtime() {
		t.Error("realtime should default to true")
	}
	if cfg.Capture.ChunkSamples != 512 {
		t.Errorf("chunk_samples = %d, want 512", cfg.Capture.ChunkSamples)
	}
	if cfg.Tracking.Mode != "average" || cfg.Tracking.StepsPerDisplay != 2 || cfg.Tracking.MaxPoints != 0 {
		t.Errorf("tracking = %+v", cfg.Tracking)
	}
	if cfg.Storage.Path != "" {
		t.Errorf("storage should be disabled by default, got %q", cfg.Storage.Path)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("model:\n  path: a.onnx\n  colour: red\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/pitchtrace.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention open, got: %v", err)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.Slog(); got != tt.want {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRegistry_CreateEngine(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.EngineEntry
	want := &pitchmock.Engine{}
	reg.RegisterEngine("fake", func(e config.EngineEntry) (pitch.Engine, error) {
		gotEntry = e
		return want, nil
	})

	e, err := reg.CreateEngine(config.EngineEntry{Name: "fake", Path: "m.onnx"})
	if err != nil {
		t.Fatalf("CreateEngine: %v", err)
	}
	if e != want {
		t.Error("CreateEngine returned a different engine")
	}
	if gotEntry.Path != "m.onnx" {
		t.Errorf("factory received entry %+v", gotEntry)
	}

	_, err = reg.CreateEngine(config.EngineEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEngine(missing) error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateDevice(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterDevice("fake", func(c config.CaptureConfig) (audio.Device, error) {
		return &audiomock.Device{DeviceName: c.Path}, nil
	})

	d, err := reg.CreateDevice(config.CaptureConfig{Name: "fake", Path: "mic"})
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if d.Name() != "mic" {
		t.Errorf("device name = %q, want mic", d.Name())
	}

	_, err = reg.CreateDevice(config.CaptureConfig{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateDevice(nope) error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteAndNames(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first := &pitchmock.Engine{}
	second := &pitchmock.Engine{}
	reg.RegisterEngine("onnx", func(config.EngineEntry) (pitch.Engine, error) { return first, nil })
	reg.RegisterEngine("onnx", func(config.EngineEntry) (pitch.Engine, error) { return second, nil })
	reg.RegisterEngine("alpha", func(config.EngineEntry) (pitch.Engine, error) { return first, nil })
	reg.RegisterDevice("file", func(config.CaptureConfig) (audio.Device, error) { return nil, nil })

	e, _ := reg.CreateEngine(config.EngineEntry{Name: "onnx"})
	if e != second {
		t.Error("later registration should overwrite the earlier one")
	}

	engines, devices := reg.Names()
	if !slices.Equal(engines, []string{"alpha", "onnx"}) {
		t.Errorf("engines = %v", engines)
	}
	if !slices.Equal(devices, []string{"file"}) {
		t.Errorf("devices = %v", devices)
	}
}
