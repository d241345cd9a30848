package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/testcall/internal/config"
	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/internal/resilience"
)

// BuildProviders instantiates every provider named in cfg using the registry.
// Each stage's primary is wrapped in a resilience fallback group together with
// its configured fallbacks, so circuit breakers and per-provider metrics apply
// even when no fallback is configured.
func BuildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*Providers, error) {
	pc := cfg.Providers
	ps := &Providers{}

	// ── LLM ──────────────────────────────────────────────────────────────────
	chat, err := buildLLM(reg, pc.LLM, pc.LLMFallbacks, metrics)
	if err != nil {
		return nil, err
	}
	ps.LLM = chat

	if pc.Extraction.Name != "" {
		ext, err := buildLLM(reg, pc.Extraction, nil, metrics)
		if err != nil {
			return nil, err
		}
		ps.Extraction = ext
	}

	// ── STT ──────────────────────────────────────────────────────────────────
	primarySTT, err := reg.CreateSTT(pc.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", pc.STT.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, pc.STT.Name, fallbackConfig("stt", metrics))
	for _, entry := range pc.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create stt fallback %q: %w", entry.Name, err)
		}
		sttGroup.AddFallback(entry.Name, p)
	}
	ps.STT = sttGroup
	slog.Info("provider created", "kind", "stt", "name", pc.STT.Name, "fallbacks", len(pc.STTFallbacks))

	// ── TTS ──────────────────────────────────────────────────────────────────
	primaryTTS, err := reg.CreateTTS(pc.TTS)
	if err != nil {
		return nil, fmt.Errorf("app: create tts provider %q: %w", pc.TTS.Name, err)
	}
	ttsGroup := resilience.NewTTSFallback(primaryTTS, pc.TTS.Name, fallbackConfig("tts", metrics))
	for _, entry := range pc.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create tts fallback %q: %w", entry.Name, err)
		}
		ttsGroup.AddFallback(entry.Name, p)
	}
	ps.TTS = ttsGroup
	slog.Info("provider created", "kind", "tts", "name", pc.TTS.Name, "fallbacks", len(pc.TTSFallbacks))

	return ps, nil
}

func buildLLM(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry, metrics *observe.Metrics) (*resilience.LLMFallback, error) {
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", primary.Name, err)
	}
	group := resilience.NewLLMFallback(p, primary.Name, fallbackConfig("llm", metrics))
	for _, entry := range fallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, fb)
	}
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model, "fallbacks", len(fallbacks))
	return group, nil
}

func fallbackConfig(kind string, metrics *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{Kind: kind, Metrics: metrics}
}
