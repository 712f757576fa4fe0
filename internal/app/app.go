// Package app wires all pitchtrace subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture loop, the HTTP server and the config
// watcher, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithListener, etc.) and mock providers. When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pitchtrace/internal/config"
	"github.com/MrWong99/pitchtrace/internal/crepe"
	"github.com/MrWong99/pitchtrace/internal/display"
	"github.com/MrWong99/pitchtrace/internal/health"
	"github.com/MrWong99/pitchtrace/internal/observe"
	"github.com/MrWong99/pitchtrace/internal/settings"
	"github.com/MrWong99/pitchtrace/internal/store"
	"github.com/MrWong99/pitchtrace/internal/tracker"
	"github.com/MrWong99/pitchtrace/pkg/audio"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

// shutdownTimeout bounds the graceful HTTP shutdown once Run's context ends.
const shutdownTimeout = 5 * time.Second

// Providers holds the runtime collaborators built by main.go via the config
// registry. Engine and Device are required.
type Providers struct {
	// Engine runs the pitch model, typically a *resilience.PitchFallback.
	Engine pitch.Engine

	// Device is the capture source.
	Device audio.Device
}

// App owns all subsystem lifetimes and orchestrates the pitch pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	tracker  *tracker.Tracker
	settings *settings.Manager
	store    *store.Store
	recorder *store.Recorder
	display  *display.Server
	server   *http.Server
	watcher  *config.Watcher

	metrics    *observe.Metrics
	level      *slog.LevelVar
	listener   net.Listener
	configPath string

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an open store instead of opening storage.path. The
// caller keeps ownership and closes it.
func WithStore(s *store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config hot reload change the log level of the handler
// installed by main.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithListener serves HTTP on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithConfigPath enables hot reload by watching the config file at path.
// Standard input cannot be watched and is ignored.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: decoder and tracker
// construction, storage migration, settings loading, and HTTP route setup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Engine == nil || providers.Device == nil {
		return nil, errors.New("app: engine and device providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Tracker ───────────────────────────────────────────────────────
	if err := a.initTracker(); err != nil {
		return nil, fmt.Errorf("app: init tracker: %w", err)
	}

	// ── 2. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 3. Settings ──────────────────────────────────────────────────────
	a.initSettings(ctx)

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" && a.configPath != "-" {
		w, err := config.NewWatcher(a.configPath, a.OnConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
	}

	// ── 5. Display server ────────────────────────────────────────────────
	if err := a.initDisplay(); err != nil {
		return nil, fmt.Errorf("app: init display: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTracker builds the decoder and the shared tracker.
func (a *App) initTracker() error {
	dec, err := crepe.NewDecoder(crepe.Spacing(a.cfg.Model.CentsSpacing))
	if err != nil {
		return err
	}
	mode, err := tracker.ParseMode(a.cfg.Tracking.Mode)
	if err != nil {
		return err
	}
	a.tracker = tracker.New(a.providers.Engine, dec,
		tracker.WithMode(mode, a.cfg.Tracking.StepsPerDisplay),
		tracker.WithMaxPoints(a.cfg.Tracking.MaxPoints),
		tracker.WithMetrics(a.metrics),
		tracker.WithEngineName(a.cfg.Model.Name),
	)
	a.closers = append(a.closers, a.providers.Engine.Close)
	return nil
}

// initStorage opens the SQLite store unless one was injected or storage is
// disabled, and starts the trace recorder when recording is enabled.
func (a *App) initStorage(ctx context.Context) error {
	if a.store == nil && a.cfg.Storage.Path != "" {
		st, err := store.Open(ctx, a.cfg.Storage.Path)
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
		slog.Info("storage opened", "path", a.cfg.Storage.Path)
	}
	if a.store != nil && a.cfg.Storage.RecordTraces {
		a.recorder = store.NewRecorder(a.store)
		a.closers = append(a.closers, a.recorder.Close)
	}
	return nil
}

// initSettings loads the persisted settings record. A missing or unreadable
// record leaves the defaults in place.
func (a *App) initSettings(ctx context.Context) {
	var kv settings.KV
	if a.store != nil {
		kv = a.store
	}
	a.settings = settings.NewManager(kv)
	s, err := a.settings.Load(ctx)
	if err != nil {
		slog.Warn("settings not loaded, using defaults", "err", err)
	}
	slog.Debug("settings loaded",
		"display_range", s.DisplayRange,
		"target_range", s.TargetRange,
		"confidence_threshold", s.ConfidenceThreshold,
	)
}

// initDisplay builds the health handler, the display routes and the HTTP
// server.
func (a *App) initDisplay() error {
	checkers := []health.Checker{health.FlagChecker("model", a.modelHealthy)}
	if a.store != nil {
		checkers = append(checkers, health.PingChecker("storage", a.store))
	}
	hh := health.New(checkers, health.WithCapture(func() any { return a.CaptureStatus() }))

	deps := display.Deps{
		Source:   a.tracker,
		Settings: a.settings,
		Health:   hh,
		Metrics:  a.metrics,
	}
	if a.store != nil {
		deps.Sessions = a.store
	}
	if h, ok := a.providers.Device.(http.Handler); ok {
		deps.Capture = h
	}
	srv, err := display.New(deps)
	if err != nil {
		return err
	}
	a.display = srv
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// modelHealthy reports whether the engine accepts calls. Engines without
// breakers are always healthy.
func (a *App) modelHealthy() bool {
	if h, ok := a.providers.Engine.(interface{ Healthy() bool }); ok {
		return h.Healthy()
	}
	return true
}

// CaptureState is the capture section of /readyz.
type CaptureState struct {
	Device    string          `json:"device"`
	Connected bool            `json:"connected"`
	Session   tracker.Session `json:"session"`
	Stats     tracker.Stats   `json:"stats"`
	Recording bool            `json:"recording"`
	Dropped   int64           `json:"recorder_dropped,omitempty"`
}

// CaptureStatus reports the capture device and current session.
func (a *App) CaptureStatus() CaptureState {
	sess := a.tracker.Session()
	st := CaptureState{
		Device:    a.providers.Device.Name(),
		Connected: sess.Active,
		Session:   sess,
		Stats:     a.tracker.Stats(),
		Recording: a.recorder != nil,
	}
	if c, ok := a.providers.Device.(interface{ Active() bool }); ok {
		st.Connected = c.Active()
	}
	if a.recorder != nil {
		st.Dropped = a.recorder.Dropped()
	}
	return st
}

// Tracker returns the shared pitch tracker.
func (a *App) Tracker() *tracker.Tracker { return a.tracker }

// Settings returns the settings manager.
func (a *App) Settings() *settings.Manager { return a.settings }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// OnConfigChange applies the live parts of a config change: the log level
// and the tracking mode. Everything else is logged as requiring a restart.
func (a *App) OnConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TrackingChanged {
		mode, err := tracker.ParseMode(d.NewTracking.Mode)
		if err != nil {
			slog.Warn("tracking change ignored", "err", err)
		} else {
			a.tracker.SetMode(mode, d.NewTracking.StepsPerDisplay)
			slog.Info("tracking mode changed", "mode", mode, "steps_per_display", d.NewTracking.StepsPerDisplay)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "sections", slices.Clone(d.RestartRequired))
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the capture loop, the HTTP server and the config watcher and
// blocks until ctx is cancelled or one of them fails.
//
// The capture loop ending because the device is exhausted does not stop Run;
// the last trace stays available until ctx ends. Run returns nil on a clean
// shutdown.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Websocket handlers derive from gctx so they end with the app.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error { return a.captureLoop(gctx) })
	g.Go(func() error { return a.serve() })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("app running",
		"addr", a.addr(),
		"device", a.providers.Device.Name(),
		"engine", a.cfg.Model.Name,
	)
	return g.Wait()
}

// serve runs the HTTP server until it is shut down.
func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	var err error
	switch {
	case a.listener != nil && tls != nil:
		err = a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
	case a.listener != nil:
		err = a.server.Serve(a.listener)
	case tls != nil:
		err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	default:
		err = a.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("app: http server: %w", err)
}

func (a *App) addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown persists the settings, flushes recorded traces and closes the
// store and the engine. Safe to call more than once; only the first call has
// effect.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if d, ok := a.providers.Device.(interface{ Shutdown() }); ok {
			d.Shutdown()
		}
		if a.store != nil {
			if err := a.settings.Save(ctx); err != nil {
				errs = append(errs, fmt.Errorf("save settings: %w", err))
			}
		}
		for _, c := range slices.Backward(a.closers) {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("app stopped")
	})
	return errors.Join(errs...)
}
