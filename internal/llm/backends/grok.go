package backends

import (
	"context"
	"fmt"

	"assistant-webui-backend/internal/llm"
)

// GrokBackend implements the llm.Backend interface for the xAI API.
// xAI exposes an OpenAI-compatible chat surface, so the backend reuses
// the shared protocol client with its own endpoint and defaults.
type GrokBackend struct {
	name   string
	client *openAICompatClient
}

// Compile-time interface assertion
var _ llm.Backend = (*GrokBackend)(nil)

// NewGrokBackend creates a Grok backend from a validated config.
func NewGrokBackend(cfg *llm.BackendConfig) (*GrokBackend, error) {
	if cfg.Type != llm.BackendGrok {
		return nil, fmt.Errorf("invalid backend type: expected %s, got %s", llm.BackendGrok, cfg.Type)
	}

	name := cfg.Name
	if name == "" {
		name = "grok"
	}

	return &GrokBackend{
		name:   name,
		client: newOpenAICompatClient(llm.BackendGrok, cfg),
	}, nil
}

// Name returns the backend instance name.
func (b *GrokBackend) Name() string {
	return b.name
}

// Type returns the backend type identifier.
func (b *GrokBackend) Type() llm.BackendType {
	return llm.BackendGrok
}

// Ping checks if the xAI API is reachable with the configured credential.
func (b *GrokBackend) Ping(ctx context.Context) error {
	return b.client.ping(ctx)
}

// Available checks if the backend can serve requests.
func (b *GrokBackend) Available(ctx context.Context) bool {
	return b.Ping(ctx) == nil
}

// Chat performs a chat completion request.
func (b *GrokBackend) Chat(ctx context.Context, req *llm.ChatRequest, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	return b.client.chat(ctx, req, callback)
}

// ListModels returns the models visible to the configured credential.
func (b *GrokBackend) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return b.client.listModels(ctx)
}

// Close releases the credential reference.
func (b *GrokBackend) Close() error {
	b.client.apiKey = ""
	return nil
}
