package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/pkg/provider/llm"
	llmmock "github.com/MrWong99/testcall/pkg/provider/llm/mock"
	"github.com/MrWong99/testcall/pkg/provider/stt"
	sttmock "github.com/MrWong99/testcall/pkg/provider/stt/mock"
	"github.com/MrWong99/testcall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/testcall/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9191"
  log_level: debug

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: anthropic
      api_key: ak-test
      model: claude-haiku
  extraction:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: deepgram
    api_key: dg-test
    options:
      smart_format: true
  stt_fallbacks:
    - name: whisper
      base_url: http://localhost:8178
  tts:
    name: elevenlabs
    api_key: el-test

receptionist:
  greeting: "Hi, this is Flynn Plumbing, how can I help?"
  questions:
    - What's the problem?
    - What's the address?
  voice_id: rachel
  voice_profile_id: warm
  vocabulary: [Flynn, Oak Street]

harness:
  max_capture: 15s
  auto_close_delay: 5s
  stage_timeout: 30s
  extraction_threshold: 4
  cache_dir: /tmp/testcall

audio:
  capture_command: ffmpeg
  input_format: alsa
  input_device: hw:1
  player_command: ffplay
  microphone_allowed: true

bookings:
  backend: sqlite
  path: bookings.db
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

const minimalYAML = `
providers:
  llm: {name: openai}
  stt: {name: whisper}
  tts: {name: coqui}
receptionist:
  greeting: Hello
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9191" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("unexpected server section %+v", cfg.Server)
	}
	if got := cfg.Providers.LLMFallbacks; len(got) != 1 || got[0].Name != "anthropic" {
		t.Errorf("want one anthropic fallback, got %+v", got)
	}
	if cfg.Providers.Extraction.Model != "gpt-4o" {
		t.Errorf("want extraction model gpt-4o, got %q", cfg.Providers.Extraction.Model)
	}
	if v, ok := cfg.Providers.STT.Options["smart_format"].(bool); !ok || !v {
		t.Errorf("want stt option smart_format=true, got %v", cfg.Providers.STT.Options)
	}
	if cfg.Harness.MaxCapture != 15*time.Second {
		t.Errorf("want max_capture 15s, got %v", cfg.Harness.MaxCapture)
	}
	if cfg.Harness.ExtractionThreshold != 4 {
		t.Errorf("want extraction_threshold 4, got %d", cfg.Harness.ExtractionThreshold)
	}
	if cfg.Audio.InputDevice != "hw:1" || !cfg.Audio.MicrophoneConsent() {
		t.Errorf("unexpected audio section %+v", cfg.Audio)
	}
	if cfg.Bookings.Backend != config.BookingSQLite || cfg.Bookings.Path != "bookings.db" {
		t.Errorf("unexpected bookings section %+v", cfg.Bookings)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, minimalYAML)

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("want listen addr %q, got %q", config.DefaultListenAddr, cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("want log level info, got %q", cfg.Server.LogLevel)
	}
	if cfg.Harness.MaxCapture != config.DefaultMaxCapture {
		t.Errorf("want max capture %v, got %v", config.DefaultMaxCapture, cfg.Harness.MaxCapture)
	}
	if cfg.Harness.AutoCloseDelay != config.DefaultAutoCloseDelay {
		t.Errorf("want auto close %v, got %v", config.DefaultAutoCloseDelay, cfg.Harness.AutoCloseDelay)
	}
	if cfg.Harness.StageTimeout != config.DefaultStageTimeout {
		t.Errorf("want stage timeout %v, got %v", config.DefaultStageTimeout, cfg.Harness.StageTimeout)
	}
	if cfg.Harness.ExtractionThreshold != config.DefaultExtractionThreshold {
		t.Errorf("want threshold %d, got %d", config.DefaultExtractionThreshold, cfg.Harness.ExtractionThreshold)
	}
	if cfg.Bookings.Backend != config.BookingFile || cfg.Bookings.Path != config.DefaultBookingsPath {
		t.Errorf("unexpected bookings defaults %+v", cfg.Bookings)
	}
	if !cfg.Audio.MicrophoneConsent() {
		t.Error("unset microphone_allowed should count as allowed")
	}
	if !cfg.Server.AdminEnabled() {
		t.Error("admin server should be enabled by default")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + "\nnpcs: []\n"))
	if err == nil {
		t.Fatal("want error for unknown top-level key")
	}
	if !strings.Contains(err.Error(), "npcs") {
		t.Errorf("want error naming the key, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/testcall.yaml"); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		yaml     string
		wantErrs []string
	}{
		{
			name:     "empty document",
			yaml:     "",
			wantErrs: []string{"providers.llm.name is required", "providers.stt.name is required", "providers.tts.name is required", "receptionist.greeting is required"},
		},
		{
			name:     "bad log level",
			yaml:     minimalYAML + "server:\n  log_level: chatty\n",
			wantErrs: []string{"server.log_level"},
		},
		{
			name:     "blank question",
			yaml:     strings.Replace(minimalYAML, "greeting: Hello", "greeting: Hello\n  questions: [\"  \"]", 1),
			wantErrs: []string{"receptionist.questions[0] is empty"},
		},
		{
			name:     "profile without voice",
			yaml:     strings.Replace(minimalYAML, "greeting: Hello", "greeting: Hello\n  voice_profile_id: warm", 1),
			wantErrs: []string{"voice_profile_id requires"},
		},
		{
			name:     "unnamed fallback",
			yaml:     strings.Replace(minimalYAML, "stt: {name: whisper}", "stt: {name: whisper}\n  stt_fallbacks:\n    - model: x", 1),
			wantErrs: []string{"providers.stt_fallbacks[0].name is required"},
		},
		{
			name:     "negative durations",
			yaml:     minimalYAML + "harness:\n  max_capture: -1s\n  auto_close_delay: -2s\n  extraction_threshold: -1\n",
			wantErrs: []string{"harness.max_capture", "harness.auto_close_delay", "harness.extraction_threshold"},
		},
		{
			name:     "unknown backend",
			yaml:     minimalYAML + "bookings:\n  backend: redis\n",
			wantErrs: []string{"bookings.backend \"redis\" is invalid"},
		},
		{
			name:     "postgres without dsn",
			yaml:     minimalYAML + "bookings:\n  backend: postgres\n",
			wantErrs: []string{"bookings.dsn is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("want validation error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("want error containing %q, got %v", want, err)
				}
			}
		})
	}
}

func TestReceptionist_CallConfig(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	cc := cfg.Receptionist.CallConfig()
	if cc.Greeting != cfg.Receptionist.Greeting || cc.VoiceProfileID != "warm" {
		t.Errorf("unexpected call config %+v", cc)
	}
	cc.Questions[0] = "changed"
	cc.Vocabulary[0] = "changed"
	if cfg.Receptionist.Questions[0] == "changed" || cfg.Receptionist.Vocabulary[0] == "changed" {
		t.Error("call config shares slices with the loaded config")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	entry := config.ProviderEntry{Name: "fake", Model: "m1", APIKey: "k"}
	p, err := reg.CreateLLM(entry)
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Errorf("Complete: %v", err)
	}
	if gotEntry.Model != "m1" || gotEntry.APIKey != "k" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if _, err := reg.CreateSTT(entry); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(entry); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "missing"}

	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: want ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: want ErrProviderNotRegistered, got %v", err)
	}
	_, err := reg.CreateTTS(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: want ErrProviderNotRegistered, got %v", err)
	}
	if !strings.Contains(err.Error(), `tts/"missing"`) {
		t.Errorf("want kind and name in error, got %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("bad key")
	reg.RegisterTTS("x", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "x"}); !errors.Is(err, boom) {
		t.Errorf("want factory error, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })

	got := reg.Names("stt")
	if len(got) != 2 || got[0] != "deepgram" || got[1] != "whisper" {
		t.Errorf("want [deepgram whisper], got %v", got)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("want no llm names, got %v", got)
	}
}
