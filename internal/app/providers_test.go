package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/testcall/internal/app"
	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/internal/resilience"
	"github.com/MrWong99/testcall/pkg/provider/llm"
	llmmock "github.com/MrWong99/testcall/pkg/provider/llm/mock"
	"github.com/MrWong99/testcall/pkg/provider/stt"
	sttmock "github.com/MrWong99/testcall/pkg/provider/stt/mock"
	"github.com/MrWong99/testcall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/testcall/pkg/provider/tts/mock"
)

// mockRegistry registers "primary" and "backup" for every kind. The primary
// LLM always fails so fallback can be observed.
func mockRegistry() (*config.Registry, *llmmock.Provider) {
	reg := config.NewRegistry()
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from backup"}}
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{CompleteErr: errors.New("quota exceeded")}, nil
	})
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return backup, nil })
	for _, name := range []string{"primary", "backup"} {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
		reg.RegisterTTS(name, func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	}
	return reg, backup
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()

	reg, backup := mockRegistry()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "primary"},
		LLMFallbacks: []config.ProviderEntry{{Name: "backup"}},
		STT:          config.ProviderEntry{Name: "primary"},
		STTFallbacks: []config.ProviderEntry{{Name: "backup"}},
		TTS:          config.ProviderEntry{Name: "primary"},
	}}

	ps, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.Extraction != nil {
		t.Errorf("want no separate extraction provider, got %T", ps.Extraction)
	}

	resp, err := ps.LLM.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from backup" {
		t.Errorf("want backup response, got %q", resp.Content)
	}
	if n := len(backup.Calls()); n != 1 {
		t.Errorf("backup calls: want 1, got %d", n)
	}

	states := ps.STT.(*resilience.STTFallback).States()
	if len(states) != 2 {
		t.Errorf("stt breakers: want 2, got %v", states)
	}
}

func TestBuildProviders_Extraction(t *testing.T) {
	t.Parallel()

	reg, _ := mockRegistry()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:        config.ProviderEntry{Name: "primary"},
		Extraction: config.ProviderEntry{Name: "backup"},
		STT:        config.ProviderEntry{Name: "primary"},
		TTS:        config.ProviderEntry{Name: "primary"},
	}}
	ps, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.Extraction == nil {
		t.Fatal("want an extraction provider, got nil")
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(pc *config.ProvidersConfig)
	}{
		{"unknown llm", func(pc *config.ProvidersConfig) { pc.LLM.Name = "nosuch" }},
		{"unknown llm fallback", func(pc *config.ProvidersConfig) { pc.LLMFallbacks = []config.ProviderEntry{{Name: "nosuch"}} }},
		{"unknown extraction", func(pc *config.ProvidersConfig) { pc.Extraction.Name = "nosuch" }},
		{"unknown stt", func(pc *config.ProvidersConfig) { pc.STT.Name = "nosuch" }},
		{"unknown stt fallback", func(pc *config.ProvidersConfig) { pc.STTFallbacks = []config.ProviderEntry{{Name: "nosuch"}} }},
		{"unknown tts", func(pc *config.ProvidersConfig) { pc.TTS.Name = "nosuch" }},
		{"unknown tts fallback", func(pc *config.ProvidersConfig) { pc.TTSFallbacks = []config.ProviderEntry{{Name: "nosuch"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg, _ := mockRegistry()
			cfg := &config.Config{Providers: config.ProvidersConfig{
				LLM: config.ProviderEntry{Name: "primary"},
				STT: config.ProviderEntry{Name: "primary"},
				TTS: config.ProviderEntry{Name: "primary"},
			}}
			tt.mutate(&cfg.Providers)

			_, err := app.BuildProviders(cfg, reg, nil)
			if !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Fatalf("want ErrProviderNotRegistered, got %v", err)
			}
		})
	}
}

func TestStatus_ReportsBreakers(t *testing.T) {
	t.Parallel()

	reg, _ := mockRegistry()
	cfg := testConfig(t)
	cfg.Providers = config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "primary"},
		STT: config.ProviderEntry{Name: "primary"},
		TTS: config.ProviderEntry{Name: "primary"},
	}
	ps, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	a, err := app.New(context.Background(), cfg, ps, app.WithDevices(app.Devices{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	st := a.Status().(app.Status)
	for _, kind := range []string{"llm", "stt", "tts"} {
		if got := st.Breakers[kind]["primary"]; got != resilience.StateClosed.String() {
			t.Errorf("%s breaker: want %q, got %q", kind, resilience.StateClosed.String(), got)
		}
	}
}
