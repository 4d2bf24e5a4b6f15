// Command expertline is the main entry point for the Expertline call server.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/expertline/expertline/internal/api"
	"github.com/expertline/expertline/internal/call"
	"github.com/expertline/expertline/internal/config"
	"github.com/expertline/expertline/internal/expert"
	"github.com/expertline/expertline/internal/health"
	"github.com/expertline/expertline/internal/interactions"
	"github.com/expertline/expertline/internal/observe"
	"github.com/expertline/expertline/internal/resilience"
	"github.com/expertline/expertline/internal/session"
	"github.com/expertline/expertline/pkg/provider/llm"
	"github.com/expertline/expertline/pkg/provider/llm/anyllm"
	llmopenai "github.com/expertline/expertline/pkg/provider/llm/openai"
	"github.com/expertline/expertline/pkg/provider/stt"
	"github.com/expertline/expertline/pkg/provider/stt/deepgram"
	"github.com/expertline/expertline/pkg/provider/tts"
	"github.com/expertline/expertline/pkg/provider/tts/elevenlabs"
)

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
			fmt.Fprintf(os.Stderr, "expertline: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "expertline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("expertline starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, "expertline")
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

	// InitProvider has set the global meter provider, so the default
	// instruments land in the Prometheus registry behind /metrics.
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Call.Retry)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Interaction log ───────────────────────────────────────────────────────
	var (
		interactionLog interactions.Log = interactions.Discard{}
		healthChecks   []health.Checker
	)
	if dsn := cfg.Persistence.PostgresDSN; dsn != "" {
		pgLog, err := interactions.NewPostgresLog(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect interaction log", "err", err)
			return 1
		}
		defer pgLog.Close()
		interactionLog = pgLog
		healthChecks = append(healthChecks, health.Database(pgLog.Pool()))
		slog.Info("interaction log connected")
	} else {
		slog.Info("no postgres_dsn configured, interactions will not be persisted")
	}

	// ── Core pipeline ─────────────────────────────────────────────────────────
	store := session.NewMemoryStore()
	voices := call.Voices{
		Default:   cfg.Voices.Default,
		Male:      cfg.Voices.Male,
		Female:    cfg.Voices.Female,
		Neutral:   cfg.Voices.Neutral,
		Concierge: cfg.Voices.Concierge,
	}
	orch := call.New(call.Config{
		STT:    providers.stt,
		Router: expert.NewRouter(providers.llm),
		Persona: expert.NewPersona(providers.llm,
			expert.WithHistoryLimit(cfg.Call.HistoryLimit),
			expert.WithTemperature(cfg.Call.Temperature),
			expert.WithMaxTokens(cfg.Call.ReplyMaxTokens),
		),
		TTS:          providers.tts,
		Store:        store,
		Locker:       session.NewLocker(),
		Interactions: interactionLog,
		Voices:       voices,
		Metrics:      metrics,
	})

	server := api.NewServer(api.Options{
		Orchestrator: orch,
		Store:        store,
		STT:          providers.stt,
		TTS:          providers.tts,
		Voices:       voices,
		Greeting:     cfg.Call.Greeting,
		Health:       health.New(healthChecks...),
		Metrics:      metrics,
	})

	printStartupSummary(cfg)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)
		var err error
		if tlsCfg := cfg.Server.TLS; tlsCfg != nil {
			err = httpSrv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
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
		slog.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// ── Config watcher ────────────────────────────────────────────────────────
	g.Go(func() error {
		current := cfg
		watcher := config.NewWatcher(*configPath, config.DefaultWatchInterval, func(next *config.Config) {
			diff := config.Compare(current, next)
			if diff.LogLevelChanged {
				logLevel.Set(slogLevel(next.Server.LogLevel))
				slog.Info("log level changed", "level", next.Server.LogLevel)
			}
			if diff.ProvidersChanged || diff.VoicesChanged || diff.CallChanged {
				slog.Warn("provider, voice, or call changes require a restart to take effect")
			}
			current = next
		})
		watcher.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// pipelineProviders holds the three providers the call pipeline needs.
type pipelineProviders struct {
	llm llm.Provider
	stt stt.Provider
	tts tts.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// retry tunes the synthesis providers' retry policy.
func registerBuiltinProviders(reg *config.Registry, retry config.RetryConfig) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai uses the official SDK; the rest go through any-llm-go.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		return elevenlabs.New(entry.APIKey, elevenlabsOptions(entry, retry)...)
	})

	reg.RegisterTTS("elevenlabs-ws", func(entry config.ProviderEntry) (tts.Provider, error) {
		var wsOpts []elevenlabs.WSOption
		if wsURL := optString(entry.Options, "ws_base_url"); wsURL != "" {
			wsOpts = append(wsOpts, elevenlabs.WithWSBaseURL(wsURL))
		}
		return elevenlabs.NewWS(entry.APIKey, elevenlabsOptions(entry, retry), wsOpts...)
	})
}

func elevenlabsOptions(entry config.ProviderEntry, retry config.RetryConfig) []elevenlabs.Option {
	var opts []elevenlabs.Option
	if entry.Model != "" {
		opts = append(opts, elevenlabs.WithModel(entry.Model))
	}
	if entry.BaseURL != "" {
		opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
	}
	if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
		opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
	}
	if retry != (config.RetryConfig{}) {
		opts = append(opts, elevenlabs.WithRetry(resilience.Retry{
			MaxAttempts: retry.MaxAttempts,
			BaseDelay:   time.Duration(retry.BaseDelay),
			Multiplier:  retry.Multiplier,
		}))
	}
	return opts
}

// buildProviders instantiates the providers named in cfg. All three pipeline
// stages are required; configured fallbacks are wrapped in failover chains.
func buildProviders(cfg *config.Config, reg *config.Registry) (*pipelineProviders, error) {
	ps := &pipelineProviders{}
	cbCfg := resilience.CircuitBreakerConfig{}

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.llm = llmProvider
	if fallbacks := cfg.Providers.LLM.Fallbacks; len(fallbacks) > 0 {
		chain := resilience.NewLLMChain(cfg.Providers.LLM.Name, llmProvider, cbCfg)
		for _, fb := range fallbacks {
			p, err := reg.CreateLLM(fb)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, p)
		}
		ps.llm = chain
	}
	slog.Info("provider created", "kind", "llm",
		"name", cfg.Providers.LLM.Name, "fallbacks", len(cfg.Providers.LLM.Fallbacks))

	sttProvider, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.stt = sttProvider
	if fallbacks := cfg.Providers.STT.Fallbacks; len(fallbacks) > 0 {
		chain := resilience.NewSTTChain(cfg.Providers.STT.Name, sttProvider, cbCfg)
		for _, fb := range fallbacks {
			p, err := reg.CreateSTT(fb)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, p)
		}
		ps.stt = chain
	}
	slog.Info("provider created", "kind", "stt",
		"name", cfg.Providers.STT.Name, "fallbacks", len(cfg.Providers.STT.Fallbacks))

	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.tts = ttsProvider
	if fallbacks := cfg.Providers.TTS.Fallbacks; len(fallbacks) > 0 {
		chain := resilience.NewTTSChain(cfg.Providers.TTS.Name, ttsProvider, cbCfg)
		for _, fb := range fallbacks {
			p, err := reg.CreateTTS(fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, p)
		}
		ps.tts = chain
	}
	slog.Info("provider created", "kind", "tts",
		"name", cfg.Providers.TTS.Name, "fallbacks", len(cfg.Providers.TTS.Fallbacks))

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Expertline — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Persistence.PostgresDSN != "" {
		fmt.Printf("║  Persistence     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Persistence     : %-19s ║\n", "(disabled)")
	}
	if cfg.Call.Greeting != "" {
		fmt.Printf("║  Greeting        : %-19s ║\n", "configured")
	} else {
		fmt.Printf("║  Greeting        : %-19s ║\n", "(silent)")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
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

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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
