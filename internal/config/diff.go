package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// server changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true if any session threshold changed. New sessions
	// pick up the new thresholds; running sessions keep the old ones.
	SessionChanged bool
	NewSession     SessionConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !sessionEqual(old.Session, new.Session) {
		d.SessionChanged = true
		d.NewSession = new.Session
	}

	return d
}

// sessionEqual compares session configs field by field. SessionConfig holds
// a slice, so == is not available.
func sessionEqual(a, b SessionConfig) bool {
	if a.WakeThreshold != b.WakeThreshold ||
		a.SilenceTimeout != b.SilenceTimeout ||
		a.FollowUpWindow != b.FollowUpWindow ||
		a.PipelineTimeout != b.PipelineTimeout ||
		a.ContextTurns != b.ContextTurns ||
		a.VADAggressiveness != b.VADAggressiveness ||
		a.Voice != b.Voice {
		return false
	}
	if len(a.WakePhrases) != len(b.WakePhrases) {
		return false
	}
	for i := range a.WakePhrases {
		if a.WakePhrases[i] != b.WakePhrases[i] {
			return false
		}
	}
	return true
}
