package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only log level and tracking are applied live; everything else is reported
// in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TrackingChanged bool
	NewTracking     TrackingConfig

	// RestartRequired lists the top-level sections whose changes take effect
	// only after a restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.TrackingChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// MaxPoints sizes the series at construction and is not live.
	if old.Tracking.Mode != new.Tracking.Mode || old.Tracking.StepsPerDisplay != new.Tracking.StepsPerDisplay {
		d.TrackingChanged = true
		d.NewTracking = new.Tracking
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !equalTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !equalModel(old.Model, new.Model) {
		d.RestartRequired = append(d.RestartRequired, "model")
	}
	if !equalCapture(old.Capture, new.Capture) {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Tracking.MaxPoints != new.Tracking.MaxPoints {
		d.RestartRequired = append(d.RestartRequired, "tracking.max_points")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalModel(a, b ModelConfig) bool {
	return a.EngineEntry == b.EngineEntry &&
		a.CentsSpacing == b.CentsSpacing &&
		slices.Equal(a.Fallbacks, b.Fallbacks)
}

func equalCapture(a, b CaptureConfig) bool {
	return a.Name == b.Name &&
		a.Path == b.Path &&
		a.SampleRate == b.SampleRate &&
		a.Channels == b.Channels &&
		a.IsRealtime() == b.IsRealtime() &&
		a.Loop == b.Loop &&
		a.ChunkSamples == b.ChunkSamples &&
		slices.Equal(a.OriginPatterns, b.OriginPatterns)
}
