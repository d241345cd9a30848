// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The harness plays each assistant reply as one clip, so providers synthesise
// a complete utterance and return it as an encoded audio file. Streaming
// backends (ElevenLabs) collect their chunks before returning.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/testcall/pkg/types"
)

var (
	// ErrEmptyText is returned when asked to synthesise blank text.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrNoVoice is returned when no voice is selected and the provider has no default.
	ErrNoVoice = errors.New("tts: no voice selected")
)

// Clip is a synthesised utterance.
type Clip struct {
	// Audio is the encoded file content.
	Audio []byte

	// Ext is the file extension matching the encoding, without a dot ("wav", "mp3").
	Ext string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice. voice.ResolvedID selects
	// the provider voice.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Clip, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
