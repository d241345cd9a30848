// Package openai provides a TTS provider backed by the OpenAI speech API
// (tts-1, tts-1-hd, gpt-4o-mini-tts). Any server speaking the same API
// (LocalAI, Kokoro-FastAPI, speaches) works through WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/testcall/pkg/provider/tts"
	"github.com/MrWong99/testcall/pkg/types"
)

const (
	defaultModel = "tts-1"
	defaultVoice = "alloy"
)

// builtinVoices are the voices the hosted API accepts. The API has no voice
// listing endpoint.
var builtinVoices = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the speech model (default "tts-1").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.reqOpts = append(p.reqOpts, option.WithBaseURL(url))
		}
	}
}

// WithDefaultVoice sets the voice used when a request carries none.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.defaultVoice = voice
		}
	}
}

// WithInstructions sets speaking-style instructions (gpt-4o-mini-tts only).
func WithInstructions(s string) Option {
	return func(p *Provider) {
		p.instructions = s
	}
}

// WithRequestOptions appends raw SDK request options (retries, HTTP client).
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, opts...)
	}
}

// Provider implements tts.Provider using the OpenAI SDK.
type Provider struct {
	client       oai.Client
	model        string
	defaultVoice string
	instructions string
	reqOpts      []option.RequestOption
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel, defaultVoice: defaultVoice}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, p.reqOpts...)...)
	return p, nil
}

// Synthesize implements tts.Provider. The clip is requested as WAV.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	v := voice.ResolvedID()
	if v == "" {
		v = p.defaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(v),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai tts: no audio returned")
	}
	return &tts.Clip{Audio: data, Ext: "wav"}, nil
}

// ListVoices returns the built-in voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		out = append(out, types.VoiceProfile{
			ID:       v,
			Name:     strings.ToUpper(v[:1]) + v[1:],
			Provider: "openai",
			Metadata: map[string]string{"model": p.model},
		})
	}
	return out, nil
}
