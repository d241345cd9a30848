package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/testcall/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(c *config.Config)
		wantRec  []string
		wantHarn bool
		wantLog  config.LogLevel
		restart  []string
	}{
		{name: "identical", mutate: func(*config.Config) {}},
		{
			name:    "greeting and questions",
			mutate:  func(c *config.Config) { c.Receptionist.Greeting = "Hey"; c.Receptionist.Questions = append(c.Receptionist.Questions, "Name?") },
			wantRec: []string{"greeting", "questions"},
		},
		{
			name:    "voice profile",
			mutate:  func(c *config.Config) { c.Receptionist.VoiceProfileID = "calm" },
			wantRec: []string{"voice"},
		},
		{
			name:    "vocabulary",
			mutate:  func(c *config.Config) { c.Receptionist.Vocabulary = []string{"Flynn"} },
			wantRec: []string{"vocabulary"},
		},
		{
			name:     "harness",
			mutate:   func(c *config.Config) { c.Harness.MaxCapture = 20 * time.Second },
			wantHarn: true,
		},
		{
			name:     "cache dir",
			mutate:   func(c *config.Config) { c.Harness.CacheDir = "/var/cache/testcall" },
			wantHarn: true,
			restart:  []string{"harness.cache_dir"},
		},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogWarn },
			wantLog: config.LogWarn,
		},
		{
			name: "restart sections",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":1"
				c.Providers.STT.Model = "nova-3"
				allowed := false
				c.Audio.MicrophoneAllowed = &allowed
				c.Bookings.Path = "other.jsonl"
			},
			restart: []string{"server", "providers", "audio", "bookings"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := mustLoad(t, minimalYAML)
			updated := mustLoad(t, minimalYAML)
			tt.mutate(updated)

			d := config.Diff(old, updated)
			if !slices.Equal(d.ReceptionistFields, tt.wantRec) {
				t.Errorf("receptionist fields: want %v, got %v", tt.wantRec, d.ReceptionistFields)
			}
			if d.HarnessChanged != tt.wantHarn {
				t.Errorf("harness changed: want %v, got %v", tt.wantHarn, d.HarnessChanged)
			}
			if d.LogLevelChanged != (tt.wantLog != "") || d.NewLogLevel != tt.wantLog {
				t.Errorf("log level: want %q, got changed=%v %q", tt.wantLog, d.LogLevelChanged, d.NewLogLevel)
			}
			if !slices.Equal(d.RestartRequired, tt.restart) {
				t.Errorf("restart: want %v, got %v", tt.restart, d.RestartRequired)
			}
			if tt.name == "identical" && !d.Empty() {
				t.Errorf("want empty diff, got %+v", d)
			}
		})
	}
}
