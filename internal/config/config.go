// Package config provides the configuration schema, loader, and engine/device
// registry for the pitchtrace server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the pitchtrace server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown and empty levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for pitchtrace.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Capture    CaptureConfig    `yaml:"capture"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Storage    StorageConfig    `yaml:"storage"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the display server (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// EngineEntry selects and configures one inference engine. Name is used to
// look up the constructor in the [Registry].
type EngineEntry struct {
	Name string `yaml:"name"`

	// Path is the model file loaded by the engine.
	Path string `yaml:"path"`

	// LibraryPath points at the shared inference runtime library. Empty uses
	// the platform default.
	LibraryPath string `yaml:"library_path"`

	// Input and Output name the model's tensor bindings.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	IntraOpThreads int `yaml:"intra_op_threads"`
}

// ModelConfig describes the primary engine, its fallbacks, and how activation
// bins map to cents.
type ModelConfig struct {
	EngineEntry `yaml:",inline"`

	// CentsSpacing is "linspace" or "span".
	CentsSpacing string `yaml:"cents_spacing"`

	// Fallbacks are tried in order when the primary engine fails or its
	// circuit breaker is open.
	Fallbacks []EngineEntry `yaml:"fallbacks"`
}

// CaptureConfig selects and configures the capture device.
type CaptureConfig struct {
	// Name selects the registered device ("file" or "browser").
	Name string `yaml:"name"`

	// Path is the input file for the file device; "-" reads stdin.
	Path string `yaml:"path"`

	// SampleRate and Channels describe raw PCM input. WAV headers override them.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Realtime paces file playback at the audio clock. Defaults to true.
	Realtime *bool `yaml:"realtime"`

	Loop bool `yaml:"loop"`

	// ChunkSamples is the number of frames per delivered chunk.
	ChunkSamples int `yaml:"chunk_samples"`

	// OriginPatterns lists extra origins accepted by the browser device.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// IsRealtime reports whether file playback should be paced.
func (c CaptureConfig) IsRealtime() bool {
	return c.Realtime == nil || *c.Realtime
}

// TrackingConfig tunes the aggregator and the retained series.
type TrackingConfig struct {
	// Mode is "per_frame" or "average".
	Mode string `yaml:"mode"`

	// StepsPerDisplay is the averaging window in frames.
	StepsPerDisplay int `yaml:"steps_per_display"`

	// MaxPoints caps the in-memory series. 0 keeps every point.
	MaxPoints int `yaml:"max_points"`
}

// StorageConfig configures the SQLite store. An empty Path disables
// persistence.
type StorageConfig struct {
	Path         string `yaml:"path"`
	RecordTraces bool   `yaml:"record_traces"`
}

// ResilienceConfig tunes the per-engine circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
