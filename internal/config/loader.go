package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/pitchtrace/internal/crepe"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultEngine         = "onnx"
	DefaultInputName      = "input"
	DefaultOutputName     = "output_0"
	DefaultDevice         = "browser"
	DefaultCaptureRate    = 16000
	DefaultChunkSamples   = 512
	DefaultStepsPerWindow = tracker.DefaultStepsPerDisplay
)

// ValidEngineNames and ValidDeviceNames list the built-in implementations.
// [Validate] warns about names outside these lists.
var (
	ValidEngineNames = []string{"onnx"}
	ValidDeviceNames = []string{"file", "browser"}
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader]. The path "-" reads
// standard input.
func Load(path string) (*Config, error) {
	if path == "-" {
		cfg, err := LoadFromReader(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("config: parse stdin: %w", err)
		}
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultEngine
	}
	if cfg.Model.CentsSpacing == "" {
		cfg.Model.CentsSpacing = string(crepe.SpacingLinspace)
	}
	engineDefaults(&cfg.Model.EngineEntry)
	for i := range cfg.Model.Fallbacks {
		engineDefaults(&cfg.Model.Fallbacks[i])
	}

	if cfg.Capture.Name == "" {
		cfg.Capture.Name = DefaultDevice
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = DefaultCaptureRate
	}
	if cfg.Capture.Channels == 0 {
		cfg.Capture.Channels = 1
	}
	if cfg.Capture.ChunkSamples == 0 {
		cfg.Capture.ChunkSamples = DefaultChunkSamples
	}

	if cfg.Tracking.Mode == "" {
		cfg.Tracking.Mode = string(tracker.ModeAverage)
	}
	if cfg.Tracking.StepsPerDisplay == 0 {
		cfg.Tracking.StepsPerDisplay = DefaultStepsPerWindow
	}
}

func engineDefaults(e *EngineEntry) {
	if e.Input == "" {
		e.Input = DefaultInputName
	}
	if e.Output == "" {
		e.Output = DefaultOutputName
	}
	if e.IntraOpThreads == 0 {
		e.IntraOpThreads = 1
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Model
	errs = append(errs, validateEngine("model", cfg.Model.EngineEntry)...)
	if !crepe.Spacing(cfg.Model.CentsSpacing).IsValid() {
		errs = append(errs, fmt.Errorf("model.cents_spacing %q is invalid; valid values: %s, %s",
			cfg.Model.CentsSpacing, crepe.SpacingLinspace, crepe.SpacingSpan))
	}
	for i, fb := range cfg.Model.Fallbacks {
		errs = append(errs, validateEngine(fmt.Sprintf("model.fallbacks[%d]", i), fb)...)
	}

	// Capture
	c := cfg.Capture
	validateName("capture", c.Name, ValidDeviceNames)
	if c.Name == "file" && c.Path == "" {
		errs = append(errs, errors.New("capture.path is required for the file device"))
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is out of range [8000, 192000]", c.SampleRate))
	}
	if c.Channels < 1 || c.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is out of range [1, 2]", c.Channels))
	}
	if c.ChunkSamples < 0 {
		errs = append(errs, fmt.Errorf("capture.chunk_samples %d must not be negative", c.ChunkSamples))
	}

	// Tracking
	if _, err := tracker.ParseMode(cfg.Tracking.Mode); err != nil {
		errs = append(errs, fmt.Errorf("tracking.mode: %w", err))
	}
	if cfg.Tracking.StepsPerDisplay < 1 {
		errs = append(errs, fmt.Errorf("tracking.steps_per_display %d must be at least 1", cfg.Tracking.StepsPerDisplay))
	}
	if cfg.Tracking.MaxPoints < 0 {
		errs = append(errs, fmt.Errorf("tracking.max_points %d must not be negative", cfg.Tracking.MaxPoints))
	}

	// Storage
	if cfg.Storage.Path == "" && cfg.Storage.RecordTraces {
		slog.Warn("storage.record_traces is set but storage.path is empty; traces will not be recorded")
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

func validateEngine(prefix string, e EngineEntry) []error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		return errs
	}
	validateName(prefix, e.Name, ValidEngineNames)
	if e.Name == "onnx" && e.Path == "" {
		errs = append(errs, fmt.Errorf("%s.path is required for the onnx engine", prefix))
	}
	if e.IntraOpThreads < 0 {
		errs = append(errs, fmt.Errorf("%s.intra_op_threads %d must not be negative", prefix, e.IntraOpThreads))
	}
	return errs
}

// validateName logs a warning if name is not among the built-in names.
func validateName(kind, name string, known []string) {
	if name == "" || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown implementation name; may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
