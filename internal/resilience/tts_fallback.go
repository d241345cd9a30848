package resilience

import (
	"context"

	"github.com/MrWong99/testcall/pkg/provider/tts"
	"github.com/MrWong99/testcall/pkg/types"
)

// TTSFallback is a [tts.Provider] that fails over across synthesis backends.
//
// Voice IDs are provider specific, so a fallback usually answers with its
// own default voice when it does not know the requested one.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a TTSFallback with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Synthesize returns the first successful clip.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices lists the primary's voices, falling back when it is down.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// States reports breaker state per backend.
func (f *TTSFallback) States() map[string]State { return f.group.States() }
