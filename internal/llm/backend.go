package llm

import (
	"context"
)

// Backend defines the interface every text-generation backend implements.
// Implementations are stateless beyond their configuration: each Chat call
// is a single request/response transaction against the provider.
type Backend interface {
	// Name returns the unique identifier for this backend instance.
	Name() string

	// Type returns the backend type identifier.
	Type() BackendType

	// Ping checks if the backend is available and responsive.
	Ping(ctx context.Context) error

	// Available checks if the backend is currently reachable.
	// This is a convenience wrapper that returns true if Ping succeeds.
	Available(ctx context.Context) bool

	// Chat performs a chat completion request. Exactly one network call is
	// made; there are no silent retries. If req.Stream is true and callback
	// is non-nil, chunks are delivered via the callback as they arrive.
	// Returns the final response or a classified error, never both.
	Chat(ctx context.Context, req *ChatRequest, callback StreamCallback) (*ChatResponse, error)

	// ListModels returns the models this backend can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases any resources held by the backend.
	Close() error
}

// PullableBackend extends Backend with model download capabilities.
type PullableBackend interface {
	Backend

	// PullModel downloads a model from the backend's registry.
	// Progress is reported via the callback.
	PullModel(ctx context.Context, name string, callback PullCallback) error
}

// DeletableBackend extends Backend with model deletion capabilities.
type DeletableBackend interface {
	Backend

	// DeleteModel removes a model from the backend.
	DeleteModel(ctx context.Context, name string) error
}
