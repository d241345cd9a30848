package llm

import "github.com/MrWong99/testcall/pkg/types"

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages or SystemPrompt must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. Order is significant and
	// must be preserved exactly by implementations.
	Messages []types.Message

	// SystemPrompt is injected before the history as a "system" message (or
	// the provider's dedicated system field).
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// JSONResponse asks the backend to emit a single JSON object. Providers
	// without a native JSON mode ignore the flag; callers must still parse
	// defensively.
	JSONResponse bool
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the full reply of a completion call.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}
