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
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers. The harness cannot run a call without all three stages.
	for _, p := range []struct {
		kind, field string
		entry       ProviderEntry
		fallbacks   []ProviderEntry
	}{
		{"llm", "providers.llm", cfg.Providers.LLM, cfg.Providers.LLMFallbacks},
		{"stt", "providers.stt", cfg.Providers.STT, cfg.Providers.STTFallbacks},
		{"tts", "providers.tts", cfg.Providers.TTS, cfg.Providers.TTSFallbacks},
	} {
		if p.entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", p.field))
		}
		validateProviderName(p.kind, p.entry.Name)
		for i, fb := range p.fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("%s_fallbacks[%d].name is required", p.field, i))
			}
			validateProviderName(p.kind, fb.Name)
		}
	}
	validateProviderName("llm", cfg.Providers.Extraction.Name)

	// Receptionist
	if strings.TrimSpace(cfg.Receptionist.Greeting) == "" {
		errs = append(errs, errors.New("receptionist.greeting is required"))
	}
	for i, q := range cfg.Receptionist.Questions {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Errorf("receptionist.questions[%d] is empty", i))
		}
	}
	if cfg.Receptionist.VoiceProfileID != "" && cfg.Receptionist.VoiceID == "" {
		errs = append(errs, errors.New("receptionist.voice_profile_id requires receptionist.voice_id"))
	}
	if len(cfg.Receptionist.Questions) == 0 {
		slog.Warn("receptionist.questions is empty; the assistant will use a generic intake script")
	}

	// Harness
	if cfg.Harness.MaxCapture < 0 {
		errs = append(errs, fmt.Errorf("harness.max_capture %s must not be negative", cfg.Harness.MaxCapture))
	}
	if cfg.Harness.AutoCloseDelay < 0 {
		errs = append(errs, fmt.Errorf("harness.auto_close_delay %s must not be negative", cfg.Harness.AutoCloseDelay))
	}
	if cfg.Harness.ExtractionThreshold < 0 {
		errs = append(errs, fmt.Errorf("harness.extraction_threshold %d must not be negative", cfg.Harness.ExtractionThreshold))
	}

	// Bookings
	switch {
	case !cfg.Bookings.Backend.IsValid():
		errs = append(errs, fmt.Errorf("bookings.backend %q is invalid; valid values: file, sqlite, postgres", cfg.Bookings.Backend))
	case cfg.Bookings.Backend == BookingPostgres && cfg.Bookings.DSN == "":
		errs = append(errs, errors.New("bookings.dsn is required when backend is postgres"))
	case cfg.Bookings.Backend != BookingPostgres && cfg.Bookings.Path == "":
		errs = append(errs, fmt.Errorf("bookings.path is required when backend is %s", cfg.Bookings.Backend))
	}

	if !cfg.Audio.MicrophoneConsent() {
		slog.Warn("audio.microphone_allowed is false; every call will be refused microphone access")
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
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
