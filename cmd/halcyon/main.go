// Command halcyon is the main entry point for the Halcyon voice assistant
// gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/halcyon-voice/halcyon/internal/config"
	"github.com/halcyon-voice/halcyon/internal/gateway"
	"github.com/halcyon-voice/halcyon/internal/health"
	"github.com/halcyon-voice/halcyon/internal/observe"
	"github.com/halcyon-voice/halcyon/internal/pipeline"
	"github.com/halcyon-voice/halcyon/internal/resilience"
	"github.com/halcyon-voice/halcyon/pkg/memory"
	"github.com/halcyon-voice/halcyon/pkg/memory/postgres"
	"github.com/halcyon-voice/halcyon/pkg/provider/router"
	routerllm "github.com/halcyon-voice/halcyon/pkg/provider/router/llm"
	routerws "github.com/halcyon-voice/halcyon/pkg/provider/router/ws"
	"github.com/halcyon-voice/halcyon/pkg/provider/stt"
	"github.com/halcyon-voice/halcyon/pkg/provider/stt/whisper"
	"github.com/halcyon-voice/halcyon/pkg/provider/tts"
	ttsopenai "github.com/halcyon-voice/halcyon/pkg/provider/tts/openai"
	"github.com/halcyon-voice/halcyon/pkg/provider/vad"
	vadenergy "github.com/halcyon-voice/halcyon/pkg/provider/vad/energy"
	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword"
	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword/phonetic"
)

// version is stamped via -ldflags at release time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("halcyon", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "halcyon: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "halcyon: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("halcyon starting",
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
		ServiceName:    "halcyon",
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

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Transcript store ──────────────────────────────────────────────────────
	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect transcript store", "err", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("store close error", "err", err)
		}
	}()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	responder := pipeline.New(
		providers.STT,
		providers.Router,
		providers.TTS,
		pipeline.WithTimeout(cfg.Session.PipelineTimeout.Std()),
		pipeline.WithVoice(tts.VoiceProfile{ID: cfg.Session.Voice}),
	)

	// ── Gateway ───────────────────────────────────────────────────────────────
	var matcher *phonetic.Matcher
	if len(cfg.Session.WakePhrases) > 0 {
		matcher = phonetic.New(cfg.Session.WakePhrases)
	}

	gw, err := gateway.New(cfg.Server, cfg.Session, gateway.Deps{
		Wake:      providers.Wake,
		VAD:       providers.VAD,
		Responder: responder,
		Store:     store,
		Matcher:   matcher,
		Checkers:  readinessCheckers(store),
	})
	if err != nil {
		slog.Error("failed to create gateway", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	// Log level takes effect immediately; session thresholds apply to new
	// connections. Provider changes still require a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionChanged {
			gw.UpdateSession(d.NewSession)
			slog.Info("session thresholds updated for new sessions")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := gw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// Providers holds one interface value per provider slot, populated from the
// config registry.
type Providers struct {
	STT    stt.Provider
	TTS    tts.Provider
	Router router.Provider
	VAD    vad.Engine
	Wake   wakeword.Detector
}

// llmBackends are the any-llm-go backends the "llm" router accepts via the
// "backend" option.
var llmBackends = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("none", func(config.ProviderEntry) (tts.Provider, error) {
		return tts.Null{}, nil
	})

	// ── Router ────────────────────────────────────────────────────────────────

	reg.RegisterRouter("llm", func(entry config.ProviderEntry) (router.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		if !slices.Contains(llmBackends, backend) {
			return nil, fmt.Errorf("unknown llm backend %q (have: %s)", backend, strings.Join(llmBackends, ", "))
		}
		var backendOpts []anyllmlib.Option
		if entry.APIKey != "" {
			backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		var opts []routerllm.Option
		if prompt := optString(entry.Options, "system_prompt"); prompt != "" {
			opts = append(opts, routerllm.WithSystemPrompt(prompt))
		}
		return routerllm.New(backend, entry.Model, opts, backendOpts...)
	})

	reg.RegisterRouter("websocket", func(entry config.ProviderEntry) (router.Provider, error) {
		return routerws.New(entry.BaseURL)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return vadenergy.New(), nil
	})

	// ── Wake word ─────────────────────────────────────────────────────────────
	// Frame-level wake models are deployment-specific; the built-in "none"
	// detector leaves activation to the typed wake-phrase gate.

	reg.RegisterWakeWord("none", func(config.ProviderEntry) (wakeword.Detector, error) {
		return wakeword.Null{}, nil
	})
}

// buildProviders instantiates the providers named in cfg. STT and Router are
// wrapped in circuit-breaker fallback groups so a flapping backend trips open
// instead of stalling every utterance.
func buildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{
		TTS:  tts.Null{},
		Wake: wakeword.Null{},
	}

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, resilience.FallbackConfig{})
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	routerP, err := reg.CreateRouter(cfg.Providers.Router)
	if err != nil {
		return nil, fmt.Errorf("create router provider %q: %w", cfg.Providers.Router.Name, err)
	}
	ps.Router = resilience.NewRouterFallback(routerP, cfg.Providers.Router.Name, resilience.FallbackConfig{})
	slog.Info("provider created", "kind", "router", "name", cfg.Providers.Router.Name)

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	} else {
		slog.Info("no tts provider configured, responses will be text-only")
	}

	vadName := cfg.Providers.VAD.Name
	if vadName == "" {
		vadName = "energy"
	}
	vadEngine, err := reg.CreateVAD(config.ProviderEntry{Name: vadName})
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", vadName, err)
	}
	ps.VAD = vadEngine
	slog.Info("provider created", "kind", "vad", "name", vadName)

	if name := cfg.Providers.WakeWord.Name; name != "" {
		p, err := reg.CreateWakeWord(cfg.Providers.WakeWord)
		if err != nil {
			return nil, fmt.Errorf("create wakeword provider %q: %w", name, err)
		}
		ps.Wake = p
		slog.Info("provider created", "kind", "wakeword", "name", name)
	}

	return ps, nil
}

// buildStore connects the durable transcript store. Without a DSN the store
// is in-memory and transcripts do not survive a restart.
func buildStore(ctx context.Context, cfg *config.Config) (memory.Store, error) {
	if cfg.Memory.PostgresDSN == "" {
		slog.Info("no postgres DSN configured, using in-memory transcript store")
		return memory.NewMemStore(), nil
	}
	store, err := postgres.New(ctx, cfg.Memory.PostgresDSN)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to postgres transcript store")
	return store, nil
}

// readinessCheckers builds the /readyz probe list.
func readinessCheckers(store memory.Store) []health.Checker {
	return []health.Checker{
		{
			Name: "store",
			Check: func(ctx context.Context) error {
				_, err := store.RecentTurns(ctx, "readyz-probe", 1)
				return err
			},
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Halcyon — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Router", cfg.Providers.Router.Name, cfg.Providers.Router.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Wake word", cfg.Providers.WakeWord.Name, "")
	fmt.Printf("║  Wake phrases    : %-19d ║\n", len(cfg.Session.WakePhrases))
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Transcripts     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Transcripts     : %-19s ║\n", "in-memory")
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

// newLogger returns the root logger together with its level variable so the
// level can be changed on config reload.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

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

// optString extracts a string value from a provider Options map. Returns ""
// when the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
