package resilience

import (
	"context"

	"github.com/MrWong99/testcall/pkg/provider/stt"
	"github.com/MrWong99/testcall/pkg/types"
)

// STTFallback is an [stt.Provider] that fails over across transcription
// backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an STTFallback with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Transcribe returns the first successful transcript. An empty transcript
// counts as success: silence is not a provider fault.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (*types.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (*types.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// States reports breaker state per backend.
func (f *STTFallback) States() map[string]State { return f.group.States() }
