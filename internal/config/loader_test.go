package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/pitchtrace/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: loud\nmodel:\n  path: m.onnx\n",
			want: []string{"server.log_level"},
		},
		{
			name: "half-configured tls",
			yaml: "server:\n  tls:\n    cert_file: c.pem\nmodel:\n  path: m.onnx\n",
			want: []string{"server.tls"},
		},
		{
			name: "onnx without path",
			yaml: "model:\n  name: onnx\n",
			want: []string{"model.path is required"},
		},
		{
			name: "bad cents spacing",
			yaml: "model:\n  path: m.onnx\n  cents_spacing: log\n",
			want: []string{"model.cents_spacing"},
		},
		{
			name: "fallback without name or path",
			yaml: "model:\n  path: m.onnx\n  fallbacks:\n    - name: onnx\n    - path: x.onnx\n",
			want: []string{"model.fallbacks[0].path is required", "model.fallbacks[1].name is required"},
		},
		{
			name: "file device without path",
			yaml: "model:\n  path: m.onnx\ncapture:\n  name: file\n",
			want: []string{"capture.path is required"},
		},
		{
			name: "capture format out of range",
			yaml: "model:\n  path: m.onnx\ncapture:\n  sample_rate: 4000\n  channels: 6\n",
			want: []string{"capture.sample_rate", "capture.channels"},
		},
		{
			name: "unknown tracking mode",
			yaml: "model:\n  path: m.onnx\ntracking:\n  mode: median\n",
			want: []string{"tracking.mode"},
		},
		{
			name: "negative tracking sizes",
			yaml: "model:\n  path: m.onnx\ntracking:\n  steps_per_display: -1\n  max_points: -5\n",
			want: []string{"tracking.steps_per_display", "tracking.max_points"},
		},
		{
			name: "negative resilience",
			yaml: "model:\n  path: m.onnx\nresilience:\n  max_failures: -1\n  reset_timeout: -1s\n",
			want: []string{"resilience.max_failures", "resilience.reset_timeout"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
model:
  cents_spacing: log
tracking:
  mode: median
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, w := range []string{"server.log_level", "model.path", "model.cents_spacing", "tracking.mode"} {
		if !strings.Contains(err.Error(), w) {
			t.Errorf("joined error missing %q: %v", w, err)
		}
	}
}

func TestValidate_UnknownNamesOnlyWarn(t *testing.T) {
	t.Parallel()
	yaml := `
model:
  name: custom-engine
capture:
  name: alsa
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("third-party names should only warn, got: %v", err)
	}
}

func TestValidate_StdinFileDevice(t *testing.T) {
	t.Parallel()
	yaml := `
model:
  path: m.onnx
capture:
  name: file
  path: "-"
  realtime: false
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Path != "-" {
		t.Errorf("capture.path = %q, want -", cfg.Capture.Path)
	}
}

func TestValidate_RecordWithoutStorageIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
model:
  path: m.onnx
storage:
  record_traces: true
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("record_traces without a path should only warn, got: %v", err)
	}
}
