// Command doorwarden is the main entry point for the Doorwarden voice
// passphrase authentication server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/doorwarden/internal/audit"
	"github.com/MrWong99/doorwarden/internal/config"
	"github.com/MrWong99/doorwarden/internal/doorbell"
	"github.com/MrWong99/doorwarden/internal/health"
	"github.com/MrWong99/doorwarden/internal/observe"
	"github.com/MrWong99/doorwarden/internal/resilience"
	"github.com/MrWong99/doorwarden/internal/server"
	"github.com/MrWong99/doorwarden/pkg/device"
	devicemock "github.com/MrWong99/doorwarden/pkg/device/mock"
	"github.com/MrWong99/doorwarden/pkg/device/ringbridge"
	"github.com/MrWong99/doorwarden/pkg/provider/stt"
	sttmock "github.com/MrWong99/doorwarden/pkg/provider/stt/mock"
	oaistt "github.com/MrWong99/doorwarden/pkg/provider/stt/openai"
	"github.com/MrWong99/doorwarden/pkg/provider/stt/whisper"
	"github.com/MrWong99/doorwarden/pkg/provider/tts"
	"github.com/MrWong99/doorwarden/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/MrWong99/doorwarden/pkg/provider/tts/mock"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "doorwarden: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "doorwarden: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("doorwarden starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "doorwarden",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audit sink ────────────────────────────────────────────────────────────
	var recorder audit.Recorder = audit.Noop{}
	var pgRecorder *audit.PostgresRecorder
	if cfg.Audit.PostgresDSN != "" {
		pgRecorder, err = audit.NewPostgresRecorder(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect audit store", "err", err)
			return 1
		}
		defer pgRecorder.Close()
		recorder = pgRecorder
		slog.Info("audit store connected")
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	orch, err := doorbell.New(doorbell.Config{
		Secrets:        cfg.Auth.Secrets,
		Threshold:      cfg.Auth.Threshold,
		MaxAttempts:    cfg.Auth.MaxAttempts,
		RecordDuration: cfg.Auth.RecordDuration(),
		CallTimeout:    cfg.Auth.CallTimeout(),
		Prompts: doorbell.Prompts{
			Greeting: cfg.Prompts.Greeting,
			Welcome:  cfg.Prompts.Welcome,
			Wrong:    cfg.Prompts.Wrong,
			Retry:    cfg.Prompts.Retry,
			Denied:   cfg.Prompts.Denied,
			Error:    cfg.Prompts.Error,
		},
	}, providers.Device, providers.Transcriber, doorbell.WithAuditRecorder(recorder))
	if err != nil {
		slog.Error("failed to initialise orchestrator", "err", err)
		return 1
	}

	// ── Health checks ─────────────────────────────────────────────────────────
	checkers := buildCheckers(providers.Device, pgRecorder)
	healthHandler := health.New(checkers...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(orch, healthHandler, observe.DefaultMetrics())
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// Providers bundles the instantiated external collaborators of the server.
type Providers struct {
	// Transcriber converts recorded passphrase audio into text. When a
	// fallback STT provider is configured this is a resilience wrapper
	// spanning both backends.
	Transcriber stt.Transcriber

	// Device is the doorbell hardware backend.
	Device device.Platform

	// TTS is held for the startup summary; prompt clips are generated ahead
	// of time by the promptgen command, not during the flow.
	TTS tts.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		m := &sttmock.Transcriber{}
		if text := optString(entry.Options, "text"); text != "" {
			m.Result = stt.Transcript{Text: text}
		}
		return m, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	// ── Device ────────────────────────────────────────────────────────────────

	reg.RegisterDevice("ringbridge", func(entry config.ProviderEntry) (device.Platform, error) {
		return ringbridge.New(entry.BaseURL)
	})

	reg.RegisterDevice("mock", func(config.ProviderEntry) (device.Platform, error) {
		return &devicemock.Platform{}, nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry.
// The STT fallback, when configured, is layered behind a circuit breaker so a
// cloud outage degrades to the secondary backend instead of failing sessions.
func buildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.Transcriber = primary
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if name := cfg.Providers.STTFallback.Name; name != "" {
		secondary, err := reg.CreateSTT(cfg.Providers.STTFallback)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback provider %q: %w", name, err)
		}
		fb := resilience.NewTranscriberFallback(primary, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		fb.AddFallback(name, secondary)
		ps.Transcriber = fb
		slog.Info("provider created", "kind", "stt_fallback", "name", name)
	}

	ps.Device, err = reg.CreateDevice(cfg.Providers.Device)
	if err != nil {
		return nil, fmt.Errorf("create device provider %q: %w", cfg.Providers.Device.Name, err)
	}
	slog.Info("provider created", "kind", "device", "name", cfg.Providers.Device.Name)

	if name := cfg.Providers.TTS.Name; name != "" {
		ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	return ps, nil
}

// ── Health checks ─────────────────────────────────────────────────────────────

// pinger is implemented by backends that can probe their remote endpoint.
type pinger interface {
	Ping(ctx context.Context) error
}

// buildCheckers assembles the readiness checks for backends that support
// probing. The mock backends expose no Ping and are simply not checked.
func buildCheckers(platform device.Platform, pg *audit.PostgresRecorder) []health.Checker {
	var checkers []health.Checker
	if p, ok := platform.(pinger); ok {
		checkers = append(checkers, health.Checker{Name: "device", Check: p.Ping})
	}
	if pg != nil {
		checkers = append(checkers, health.Checker{Name: "audit", Check: pg.Ping})
	}
	return checkers
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Doorwarden — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("STT fallback", cfg.Providers.STTFallback.Name, cfg.Providers.STTFallback.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Device", cfg.Providers.Device.Name, "")
	fmt.Printf("║  Passphrases     : %-19d ║\n", len(cfg.Auth.Secrets))
	fmt.Printf("║  Max attempts    : %-19d ║\n", cfg.Auth.MaxAttempts)
	fmt.Printf("║  Threshold       : %-19.0f ║\n", cfg.Auth.Threshold)
	if cfg.Audit.PostgresDSN != "" {
		fmt.Printf("║  Audit store     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Audit store     : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
