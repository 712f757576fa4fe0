package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/pitchtrace/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Model: config.ModelConfig{
			EngineEntry:  config.EngineEntry{Name: "onnx", Path: "full.onnx"},
			CentsSpacing: "linspace",
			Fallbacks:    []config.EngineEntry{{Name: "onnx", Path: "tiny.onnx"}},
		},
		Capture:  config.CaptureConfig{Name: "browser", SampleRate: 16000, Channels: 1},
		Tracking: config.TrackingConfig{Mode: "average", StepsPerDisplay: 2},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level should be live, got restart for %v", d.RestartRequired)
	}
}

func TestDiff_TrackingChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Tracking.Mode = "per_frame"
	new.Tracking.StepsPerDisplay = 4

	d := config.Diff(old, new)
	if !d.TrackingChanged {
		t.Fatal("expected TrackingChanged=true")
	}
	if d.NewTracking.Mode != "per_frame" || d.NewTracking.StepsPerDisplay != 4 {
		t.Errorf("NewTracking = %+v", d.NewTracking)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	realtime := false
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }, "server"},
		{"tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"} }, "server"},
		{"model path", func(c *config.Config) { c.Model.Path = "other.onnx" }, "model"},
		{"spacing", func(c *config.Config) { c.Model.CentsSpacing = "span" }, "model"},
		{"fallbacks", func(c *config.Config) { c.Model.Fallbacks = nil }, "model"},
		{"device", func(c *config.Config) { c.Capture.Name = "file" }, "capture"},
		{"realtime", func(c *config.Config) { c.Capture.Realtime = &realtime }, "capture"},
		{"max points", func(c *config.Config) { c.Tracking.MaxPoints = 100 }, "tracking.max_points"},
		{"storage", func(c *config.Config) { c.Storage.Path = "x.db" }, "storage"},
		{"resilience", func(c *config.Config) { c.Resilience.ResetTimeout = time.Minute }, "resilience"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tt.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !slices.Contains(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tt.want)
			}
			if d.TrackingChanged || d.LogLevelChanged {
				t.Errorf("unexpected live change: %+v", d)
			}
		})
	}
}

func TestDiff_ExplicitRealtimeTrueMatchesDefault(t *testing.T) {
	t.Parallel()
	realtime := true
	new := baseConfig()
	new.Capture.Realtime = &realtime
	if d := config.Diff(baseConfig(), new); !d.Empty() {
		t.Errorf("realtime: true should equal the default, got %+v", d)
	}
}
