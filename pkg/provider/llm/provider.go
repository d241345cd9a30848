// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local chat-completion API (OpenAI,
// Anthropic, Gemini, a local Ollama instance, ...) and exposes a uniform
// request/response call. The harness uses it twice per call: once per caller
// turn to produce the receptionist's next utterance, and once to extract a
// structured booking from the finished transcript.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/testcall/pkg/types"
)

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the configured model.
	Capabilities() types.ModelCapabilities
}
