package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Session: SessionConfig{
			WakePhrases:   []string{"halcyon"},
			WakeThreshold: 0.5,
			ContextTurns:  10,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old := baseConfig()
	new := baseConfig()

	d := Diff(old, new)
	if d.LogLevelChanged || d.SessionChanged {
		t.Errorf("Diff reported changes for identical configs: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_SessionThresholds(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Session.WakeThreshold = 0.7

	d := Diff(old, new)
	if !d.SessionChanged {
		t.Fatal("SessionChanged = false, want true")
	}
	if d.NewSession.WakeThreshold != 0.7 {
		t.Errorf("NewSession.WakeThreshold = %v, want 0.7", d.NewSession.WakeThreshold)
	}
}

func TestDiff_WakePhrases(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Session.WakePhrases = []string{"halcyon", "computer"}

	d := Diff(old, new)
	if !d.SessionChanged {
		t.Fatal("SessionChanged = false, want true for wake phrase change")
	}
}
