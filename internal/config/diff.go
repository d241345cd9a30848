package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Receptionist, harness and log-level changes apply to the next call;
// provider, audio, booking and server changes need a restart, as does the
// harness cache directory.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ReceptionistFields names the receptionist keys that changed
	// (e.g. "greeting", "questions").
	ReceptionistFields []string

	HarnessChanged bool

	// RestartRequired lists top-level sections whose changes are ignored
	// until restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.ReceptionistFields) == 0 && !d.HarnessChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	or, nr := old.Receptionist, new.Receptionist
	if or.Greeting != nr.Greeting {
		d.ReceptionistFields = append(d.ReceptionistFields, "greeting")
	}
	if !slices.Equal(or.Questions, nr.Questions) {
		d.ReceptionistFields = append(d.ReceptionistFields, "questions")
	}
	if or.VoiceID != nr.VoiceID || or.VoiceProfileID != nr.VoiceProfileID {
		d.ReceptionistFields = append(d.ReceptionistFields, "voice")
	}
	if !slices.Equal(or.Vocabulary, nr.Vocabulary) {
		d.ReceptionistFields = append(d.ReceptionistFields, "vocabulary")
	}

	d.HarnessChanged = old.Harness != new.Harness
	if old.Harness.CacheDir != new.Harness.CacheDir {
		d.RestartRequired = append(d.RestartRequired, "harness.cache_dir")
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Bookings != new.Bookings {
		d.RestartRequired = append(d.RestartRequired, "bookings")
	}

	return d
}
