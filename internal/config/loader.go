package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"whisper", "whisper-native"},
	"tts":      {"openai", "none"},
	"router":   {"llm", "websocket"},
	"vad":      {"energy"},
	"wakeword": {"none"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
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

// LoadFromReader decodes a YAML config from r and validates the result.
// References like ${OPENAI_API_KEY} are expanded from the environment before
// decoding. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// default session thresholds for zero-value fields.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("router", cfg.Providers.Router.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("wakeword", cfg.Providers.WakeWord.Name)

	// A gateway without STT or a router cannot hold a conversation.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.Router.Name == "" {
		errs = append(errs, errors.New("providers.router is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is empty; responses will be text-only")
	}

	// Session thresholds — apply defaults, then range-check.
	s := &cfg.Session
	if s.WakeThreshold == 0 {
		s.WakeThreshold = DefaultWakeThreshold
	}
	if s.SilenceTimeout == 0 {
		s.SilenceTimeout = Duration(DefaultSilenceTimeout)
	}
	if s.FollowUpWindow == 0 {
		s.FollowUpWindow = Duration(DefaultFollowUpWindow)
	}
	if s.PipelineTimeout == 0 {
		s.PipelineTimeout = Duration(DefaultPipelineTimeout)
	}
	if s.ContextTurns == 0 {
		s.ContextTurns = DefaultContextTurns
	}
	if s.VADAggressiveness == 0 {
		s.VADAggressiveness = DefaultVADAggressiveness
	}

	if s.WakeThreshold < 0 || s.WakeThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.wake_threshold %.2f is out of range [0, 1]", s.WakeThreshold))
	}
	if s.SilenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.silence_timeout %v must not be negative", s.SilenceTimeout.Std()))
	}
	if s.FollowUpWindow < 0 {
		errs = append(errs, fmt.Errorf("session.follow_up_window %v must not be negative", s.FollowUpWindow.Std()))
	}
	if s.PipelineTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.pipeline_timeout %v must not be negative", s.PipelineTimeout.Std()))
	}
	if s.ContextTurns < 0 {
		errs = append(errs, fmt.Errorf("session.context_turns %d must not be negative", s.ContextTurns))
	}
	if s.VADAggressiveness < 0 || s.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("session.vad_aggressiveness %d is out of range [0, 3]", s.VADAggressiveness))
	}

	// Memory availability
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; transcripts will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
