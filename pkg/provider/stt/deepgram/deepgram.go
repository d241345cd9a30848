// Package deepgram provides a Deepgram-backed STT provider.
//
// Deepgram's live endpoint is used even for complete clips: the clip is
// replayed over the WebSocket, a CloseStream message asks the server to
// flush, and the final results are joined into one transcript. This keeps
// keyword biasing and smart formatting identical to a real phone line.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/provider/stt"
	"github.com/MrWong99/testcall/pkg/types"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkBytes is 250 ms of 16 kHz mono audio.
	chunkBytes = 8000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model ("nova-3", "nova-2", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used for self-hosted
// deployments and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*types.Transcript, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}
	wsURL, err := p.buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- replay(ctx, conn, req.Audio)
	}()

	var (
		parts []string
		confs []float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseResponse(msg)
		if !ok {
			continue
		}
		if r.done {
			break
		}
		if r.final && r.text != "" {
			parts = append(parts, r.text)
			confs = append(confs, r.confidence)
		}
	}
	if err := <-writeErr; err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("deepgram: send audio: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "transcription complete")

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	return &types.Transcript{
		Text:       strings.Join(parts, " "),
		Confidence: mean(confs),
		Language:   lang,
		Duration:   audio.Duration(req.Audio, req.Format),
	}, nil
}

// replay streams pcm in fixed-size binary frames, then asks Deepgram to
// flush and close.
func replay(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return err
		}
	}
	return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

// buildURL constructs the endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(req.Format.SampleRate))
	q.Set("channels", strconv.Itoa(req.Format.Channels))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "false")

	// nova-3 replaced keyword boosting with key-term prompting.
	for _, kw := range req.Keywords {
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw)
		} else {
			q.Add("keywords", kw+":2")
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- response parsing ----

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type result struct {
	text       string
	confidence float64
	final      bool
	done       bool
}

// parseResponse parses a raw Deepgram message. Returns ok=false for messages
// that carry nothing of interest.
func parseResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	switch resp.Type {
	case "Metadata":
		// Sent once, after CloseStream has flushed every result.
		return result{done: true}, true
	case "Results":
	default:
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return result{
		text:       strings.TrimSpace(alt.Transcript),
		confidence: alt.Confidence,
		final:      resp.IsFinal,
	}, true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
