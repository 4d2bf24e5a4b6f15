// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote model API (e.g., OpenAI, or any backend
// reachable through any-llm-go) and exposes a uniform interface for the call
// orchestrator and the expert router without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. Providers that lack a dedicated system field
	// prepend it as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// JSONResponse requests that the model emit a single valid JSON object.
	// Used by the expert router; providers map it to their native structured
	// output mode where available.
	JSONResponse bool
}

// FinishReasonError is the FinishReason value carried by the terminal chunk
// of a stream that failed after it was opened.
const FinishReasonError = "error"

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk. On a chunk with
	// FinishReason == FinishReasonError, Text carries the error message
	// instead of generated content.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped: "stop", "length", FinishReasonError, or "" for non-final
	// chunks.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors after
	// the channel is opened surface as a final Chunk with FinishReason
	// FinishReasonError; the initial error return is non-nil only for
	// failures that prevent the stream from starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
