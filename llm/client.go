package llm

import "context"

// ModelClient is the interface the agent core consumes to talk to a remote
// LLM endpoint. Implementations own transport concerns: authentication,
// request timeouts, and retry of transient failures. Errors crossing this
// boundary should be *ModelError so the caller can classify them.
type ModelClient interface {
	// Converse sends a blocking request and returns the full response.
	Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error)

	// ConverseStream sends a request and returns a channel of wire events.
	// The channel is closed when the stream ends; a terminal transport
	// failure is delivered as an event with Err set.
	ConverseStream(ctx context.Context, req ConverseRequest) (<-chan StreamEvent, error)
}
