// Command pitchtrace is the entry point of the real-time pitch tracking server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/pitchtrace/internal/app"
	"github.com/MrWong99/pitchtrace/internal/config"
	"github.com/MrWong99/pitchtrace/internal/observe"
	"github.com/MrWong99/pitchtrace/internal/resilience"
	"github.com/MrWong99/pitchtrace/pkg/audio"
	"github.com/MrWong99/pitchtrace/pkg/audio/browser"
	"github.com/MrWong99/pitchtrace/pkg/audio/file"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch/onnx"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", `path to the YAML configuration file ("-" reads stdin)`)
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pitchtrace: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pitchtrace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("pitchtrace starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(&level),
		app.WithConfigPath(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = providers.Engine.Close()
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if code == 0 {
		slog.Info("goodbye")
	}
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the engine and device factories that ship
// with pitchtrace into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterEngine("onnx", func(entry config.EngineEntry) (pitch.Engine, error) {
		opts := []onnx.Option{
			onnx.WithInputName(entry.Input),
			onnx.WithOutputName(entry.Output),
			onnx.WithIntraOpThreads(entry.IntraOpThreads),
		}
		if entry.LibraryPath != "" {
			opts = append(opts, onnx.WithLibraryPath(entry.LibraryPath))
		}
		return onnx.New(entry.Path, opts...)
	})

	reg.RegisterDevice("file", func(c config.CaptureConfig) (audio.Device, error) {
		return file.New(file.Config{
			Path:         c.Path,
			SampleRate:   c.SampleRate,
			Channels:     c.Channels,
			Realtime:     c.IsRealtime(),
			Loop:         c.Loop,
			ChunkSamples: c.ChunkSamples,
		})
	})

	reg.RegisterDevice("browser", func(c config.CaptureConfig) (audio.Device, error) {
		return browser.New(browser.WithOriginPatterns(c.OriginPatterns...)), nil
	})

	engines, devices := reg.Names()
	slog.Debug("registered providers", "engines", engines, "devices", devices)
}

// buildProviders instantiates the engine chain and the capture device named
// in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	primary, err := reg.CreateEngine(cfg.Model.EngineEntry)
	if err != nil {
		return nil, fmt.Errorf("create engine %q: %w", cfg.Model.Name, err)
	}
	slog.Info("engine created", "name", cfg.Model.Name, "path", cfg.Model.Path)

	fb := resilience.NewPitchFallback(primary, engineLabel(0, cfg.Model.EngineEntry), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
		},
	})
	for i, entry := range cfg.Model.Fallbacks {
		e, err := reg.CreateEngine(entry)
		if err != nil {
			_ = fb.Close()
			return nil, fmt.Errorf("create fallback engine %q: %w", entry.Name, err)
		}
		fb.AddFallback(engineLabel(i+1, entry), e)
		slog.Info("fallback engine created", "name", entry.Name, "path", entry.Path)
	}

	dev, err := reg.CreateDevice(cfg.Capture)
	if err != nil {
		_ = fb.Close()
		return nil, fmt.Errorf("create capture device %q: %w", cfg.Capture.Name, err)
	}
	slog.Info("capture device created", "name", dev.Name())

	return &app.Providers{Engine: fb, Device: dev}, nil
}

// engineLabel names the i-th engine of the chain for breaker logs.
func engineLabel(i int, e config.EngineEntry) string {
	return fmt.Sprintf("%d:%s", i, e.Name)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       pitchtrace startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Engine", cfg.Model.Name+" / "+cfg.Model.Path)
	printRow("Fallbacks", fmt.Sprint(len(cfg.Model.Fallbacks)))
	printRow("Cents spacing", cfg.Model.CentsSpacing)
	printRow("Capture", cfg.Capture.Name)
	printRow("Tracking", fmt.Sprintf("%s x%d", cfg.Tracking.Mode, cfg.Tracking.StepsPerDisplay))
	if cfg.Storage.Path != "" {
		printRow("Storage", cfg.Storage.Path)
	} else {
		printRow("Storage", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", kind, value)
}
