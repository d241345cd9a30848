// Package dialogue produces the receptionist's next utterance.
//
// The system prompt is built once per call from the configuration snapshot
// ([BuildSystemPrompt]). Each turn the [Engine] sends the full recorded
// history plus the new caller utterance to the LLM and returns the reply. The
// engine never records turns itself; the caller appends the exchange only
// after a reply came back, so a failed turn leaves no trace.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/pkg/provider/llm"
	"github.com/MrWong99/testcall/pkg/types"
)

// ErrEmptyReply is returned when the model answers with blank text.
var ErrEmptyReply = errors.New("dialogue: empty reply")

const (
	defaultTemperature = 0.6
	defaultMaxTokens   = 120
)

// Option configures an Engine.
type Option func(*Engine)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// WithMaxTokens caps reply length.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		e.maxTokens = n
	}
}

// WithMetrics records reply latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine asks an LLM for the next assistant utterance. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

// NewEngine creates an Engine over p.
func NewEngine(p llm.Provider, opts ...Option) *Engine {
	e := &Engine{llm: p, temperature: defaultTemperature, maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Messages maps recorded turns plus the pending caller utterance to LLM chat
// messages, preserving order.
func Messages(history []types.Turn, utterance string) []types.Message {
	msgs := make([]types.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, types.Message{Role: chatRole(t.Role), Content: t.Text})
	}
	return append(msgs, types.Message{Role: "user", Content: utterance})
}

func chatRole(r types.Role) string {
	if r == types.RoleCaller {
		return "user"
	}
	return "assistant"
}

// NextReply returns the assistant's answer to utterance given the recorded
// history and the call's system prompt.
func (e *Engine) NextReply(ctx context.Context, systemPrompt string, history []types.Turn, utterance string) (string, error) {
	start := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     Messages(history, utterance),
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if e.metrics != nil {
		e.metrics.RecordStage(ctx, observe.StageLLM, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("dialogue: complete: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyReply
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
