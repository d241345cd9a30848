// Package transcription turns a finished capture into caller text.
//
// The gateway reads the WAV file, converts it to the speech format, asks the
// STT provider for a transcript and repairs misheard vocabulary. Results
// shorter than the minimum length are reported as [ErrNoSpeech], which is not
// a failure: the caller simply said nothing usable.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/internal/transcript"
	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/provider/stt"
)

// ErrNoSpeech is returned when the clip holds no usable speech.
var ErrNoSpeech = errors.New("transcription: no speech detected")

// DefaultMinRunes is the shortest transcript accepted as speech.
const DefaultMinRunes = 2

// Option configures a Gateway.
type Option func(*Gateway)

// WithLanguage sets the language hint passed to the provider.
func WithLanguage(lang string) Option {
	return func(g *Gateway) {
		g.language = lang
	}
}

// WithMinRunes overrides the minimum transcript length.
func WithMinRunes(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.minRunes = n
		}
	}
}

// WithCorrector sets the vocabulary corrector. A nil corrector disables
// correction.
func WithCorrector(c *transcript.Corrector) Option {
	return func(g *Gateway) {
		g.corrector = c
	}
}

// WithMetrics records transcription latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// Gateway wraps an STT provider.
type Gateway struct {
	provider  stt.Provider
	language  string
	minRunes  int
	corrector *transcript.Corrector
	metrics   *observe.Metrics
}

// New creates a Gateway over p with the default phonetic corrector.
func New(p stt.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  p,
		minRunes:  DefaultMinRunes,
		corrector: transcript.NewCorrector(nil),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Transcribe returns the caller text recorded in the WAV file at path.
// vocabulary biases the provider and drives correction.
func (g *Gateway) Transcribe(ctx context.Context, path string, vocabulary []string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("transcription: read capture: %w", err)
	}
	pcm, format, err := audio.DecodeWAV(data)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}
	if pcm, err = audio.Convert(pcm, format, audio.SpeechFormat); err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	start := time.Now()
	tr, err := g.provider.Transcribe(ctx, stt.Request{
		Audio:    pcm,
		Format:   audio.SpeechFormat,
		Language: g.language,
		Keywords: vocabulary,
	})
	if g.metrics != nil {
		g.metrics.RecordStage(ctx, observe.StageSTT, time.Since(start), err)
	}
	if errors.Is(err, stt.ErrEmptyAudio) {
		return "", ErrNoSpeech
	}
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	text := strings.TrimSpace(tr.Text)
	if utf8.RuneCountInString(text) < g.minRunes {
		return "", ErrNoSpeech
	}
	if g.corrector != nil && len(vocabulary) > 0 {
		corrected, fixes := g.corrector.Correct(text, vocabulary)
		if len(fixes) > 0 {
			observe.Logger(ctx).Debug("transcription: vocabulary corrected", "original", text, "corrected", corrected, "fixes", len(fixes))
			text = corrected
		}
	}
	return text, nil
}
