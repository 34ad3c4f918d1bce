package ai

import (
	"context"
	"encoding/json"

	"chatmap/internal/types"
)

// Provider is the contract every model endpoint client satisfies.
// Implementations must honour ctx cancellation on both calls.
type Provider interface {
	// ChatStream opens a streaming completion and returns the decoded fragments.
	ChatStream(ctx context.Context, msgs []types.Message, cfg EndpointConfig) (FragmentStream, error)

	// ChatExtract performs one JSON-constrained completion and returns the raw document text.
	ChatExtract(ctx context.Context, msgs []types.Message, cfg EndpointConfig, opts ExtractOptions) (string, error)
}

// FragmentStream yields incremental answer text.
// Recv returns io.EOF once the terminal sentinel was read, ErrCancelled when the
// request context is done, and a *NetworkError for transport failures.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// ExtractOptions tunes the JSON-constrained call.
type ExtractOptions struct {
	// Schema is a JSON Schema document describing the expected response.
	Schema json.RawMessage
	// SchemaName labels the schema for providers with native structured output.
	SchemaName string
}
