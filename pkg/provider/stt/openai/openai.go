// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (whisper-1, gpt-4o-transcribe). Any server speaking the
// same API (Groq, LocalAI, speaches) works through WithBaseURL.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/provider/stt"
	"github.com/MrWong99/testcall/pkg/types"
)

const defaultModel = "whisper-1"

// maxUploadBytes is the API's file size limit.
const maxUploadBytes = 25 << 20

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the transcription model (default "whisper-1").
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

// WithLanguage sets the default language. A request language overrides it.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithRequestOptions appends raw SDK request options (retries, HTTP client).
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, opts...)
	}
}

// Provider implements stt.Provider using the OpenAI SDK.
type Provider struct {
	client   oai.Client
	model    string
	language string
	reqOpts  []option.RequestOption
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, p.reqOpts...)...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*types.Transcript, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai stt: %w", err)
	}
	wav := audio.EncodeWAV(req.Audio, req.Format)
	if len(wav) > maxUploadBytes {
		return nil, fmt.Errorf("openai stt: clip too large (%d bytes)", len(wav))
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if len(req.Keywords) > 0 {
		params.Prompt = oai.String(strings.Join(req.Keywords, ", "))
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcription: %w", err)
	}
	return &types.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: lang,
		Duration: audio.Duration(req.Audio, req.Format),
	}, nil
}
