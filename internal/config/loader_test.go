package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  stt:
    name: whisper
    base_url: http://localhost:8080
  tts:
    name: openai
    api_key: sk-test
  router:
    name: llm
    model: gpt-4o-mini
  vad:
    name: energy
session:
  wake_phrases: ["halcyon", "hey halcyon"]
  wake_threshold: 0.5
  silence_timeout: 3s
  follow_up_window: 10s
  pipeline_timeout: 30s
  context_turns: 10
  vad_aggressiveness: 2
  voice: alloy
memory:
  postgres_dsn: postgres://localhost/halcyon
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("stt.name = %q, want whisper", cfg.Providers.STT.Name)
	}
	if got := cfg.Session.SilenceTimeout.Std(); got != 3*time.Second {
		t.Errorf("silence_timeout = %v, want 3s", got)
	}
	if got := cfg.Session.FollowUpWindow.Std(); got != 10*time.Second {
		t.Errorf("follow_up_window = %v, want 10s", got)
	}
	if len(cfg.Session.WakePhrases) != 2 {
		t.Errorf("wake_phrases has %d entries, want 2", len(cfg.Session.WakePhrases))
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	const minimal = `
providers:
  stt:
    name: whisper
  router:
    name: llm
`
	cfg, err := LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	s := cfg.Session
	if s.WakeThreshold != DefaultWakeThreshold {
		t.Errorf("wake_threshold = %v, want %v", s.WakeThreshold, DefaultWakeThreshold)
	}
	if s.SilenceTimeout.Std() != DefaultSilenceTimeout {
		t.Errorf("silence_timeout = %v, want %v", s.SilenceTimeout.Std(), DefaultSilenceTimeout)
	}
	if s.FollowUpWindow.Std() != DefaultFollowUpWindow {
		t.Errorf("follow_up_window = %v, want %v", s.FollowUpWindow.Std(), DefaultFollowUpWindow)
	}
	if s.PipelineTimeout.Std() != DefaultPipelineTimeout {
		t.Errorf("pipeline_timeout = %v, want %v", s.PipelineTimeout.Std(), DefaultPipelineTimeout)
	}
	if s.ContextTurns != DefaultContextTurns {
		t.Errorf("context_turns = %d, want %d", s.ContextTurns, DefaultContextTurns)
	}
	if s.VADAggressiveness != DefaultVADAggressiveness {
		t.Errorf("vad_aggressiveness = %d, want %d", s.VADAggressiveness, DefaultVADAggressiveness)
	}
}

func TestLoadFromReader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("HALCYON_TEST_KEY", "sk-from-env")
	const withEnv = `
providers:
  stt:
    name: whisper
  tts:
    name: openai
    api_key: ${HALCYON_TEST_KEY}
  router:
    name: llm
`
	cfg, err := LoadFromReader(strings.NewReader(withEnv))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Providers.TTS.APIKey; got != "sk-from-env" {
		t.Errorf("tts.api_key = %q, want sk-from-env", got)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	const bad = `
providers:
  stt:
    name: whisper
  router:
    name: llm
sesion:
  wake_threshold: 0.5
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	const bad = `
providers:
  stt:
    name: whisper
  router:
    name: llm
session:
  silence_timeout: "three seconds"
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{LogLevel: "loud"},
		Session: SessionConfig{
			WakeThreshold:     1.5,
			VADAggressiveness: 7,
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{
		"server.log_level",
		"providers.stt is required",
		"providers.router is required",
		"session.wake_threshold",
		"session.vad_aggressiveness",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	cfg := &Config{
		Providers: ProvidersConfig{
			STT:    ProviderEntry{Name: "whisper"},
			Router: ProviderEntry{Name: "llm"},
		},
		Server: ServerConfig{
			TLS: &TLSConfig{CertFile: "cert.pem"},
		},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.tls") {
		t.Fatalf("err = %v, want tls error", err)
	}
}
