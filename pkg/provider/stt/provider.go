// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The harness records each caller utterance as a complete clip before
// transcribing it, so providers are batch-oriented: one request in, one
// transcript out. Streaming backends (Deepgram) adapt by replaying the clip
// over their live socket.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/types"
)

// ErrEmptyAudio is returned when a request carries no audio samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Request is a single batch transcription job.
type Request struct {
	// Audio is raw 16-bit signed little-endian PCM.
	Audio []byte

	// Format describes Audio. Most providers want audio.SpeechFormat.
	Format audio.Format

	// Language is a BCP-47 tag ("en", "en-US"). Empty lets the provider detect it.
	Language string

	// Keywords are domain words (business name, street names) the provider
	// should favour. Providers without biasing support ignore them.
	Keywords []string
}

// Validate checks the request for obvious mistakes before any network call.
func (r Request) Validate() error {
	if len(r.Audio) == 0 {
		return ErrEmptyAudio
	}
	if r.Format.SampleRate <= 0 || r.Format.Channels <= 0 {
		return errors.New("stt: audio format must be set")
	}
	return nil
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts speech to text. An utterance with no recognisable
	// speech yields a transcript with empty Text and a nil error.
	Transcribe(ctx context.Context, req Request) (*types.Transcript, error)
}
