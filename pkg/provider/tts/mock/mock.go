// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to hand back controlled clips and to verify which text and
// VoiceProfile the harness sent to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Clip:             &tts.Clip{Audio: wav, Ext: "wav"},
//	    ListVoicesResult: []types.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	clip, _ := p.Synthesize(ctx, "Hello.", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/testcall/pkg/provider/tts"
	"github.com/MrWong99/testcall/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Clip is returned by Synthesize. When nil a placeholder clip with Ext
	// "wav" is returned.
	Clip *tts.Clip

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// Block, when non-nil, makes Synthesize wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	SynthesizeCalls []SynthesizeCall
	ListVoicesCalls int
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	clip, err, block := p.Clip, p.SynthesizeErr, p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return &tts.Clip{Audio: []byte("mock-audio"), Ext: "wav"}, nil
	}
	out := *clip
	out.Audio = append([]byte(nil), clip.Audio...)
	return &out, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.ListVoicesResult, nil
}

// Texts returns the text of every Synthesize call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}

var _ tts.Provider = (*Provider)(nil)
