package backends

import (
	"context"
	"fmt"

	"assistant-webui-backend/internal/llm"
)

// ChatGPTBackend implements the llm.Backend interface for the OpenAI
// Chat Completions API. Instances are short-lived: the HTTP layer builds
// one per request from the caller's credential and closes it afterwards.
type ChatGPTBackend struct {
	name   string
	client *openAICompatClient
}

// Compile-time interface assertion
var _ llm.Backend = (*ChatGPTBackend)(nil)

// NewChatGPTBackend creates a ChatGPT backend from a validated config.
func NewChatGPTBackend(cfg *llm.BackendConfig) (*ChatGPTBackend, error) {
	if cfg.Type != llm.BackendChatGPT {
		return nil, fmt.Errorf("invalid backend type: expected %s, got %s", llm.BackendChatGPT, cfg.Type)
	}

	name := cfg.Name
	if name == "" {
		name = "chatgpt"
	}

	return &ChatGPTBackend{
		name:   name,
		client: newOpenAICompatClient(llm.BackendChatGPT, cfg),
	}, nil
}

// Name returns the backend instance name.
func (b *ChatGPTBackend) Name() string {
	return b.name
}

// Type returns the backend type identifier.
func (b *ChatGPTBackend) Type() llm.BackendType {
	return llm.BackendChatGPT
}

// Ping checks if the OpenAI API is reachable with the configured credential.
func (b *ChatGPTBackend) Ping(ctx context.Context) error {
	return b.client.ping(ctx)
}

// Available checks if the backend can serve requests.
func (b *ChatGPTBackend) Available(ctx context.Context) bool {
	return b.Ping(ctx) == nil
}

// Chat performs a chat completion request.
func (b *ChatGPTBackend) Chat(ctx context.Context, req *llm.ChatRequest, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	return b.client.chat(ctx, req, callback)
}

// ListModels returns the models visible to the configured credential.
func (b *ChatGPTBackend) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return b.client.listModels(ctx)
}

// Close releases the credential reference.
func (b *ChatGPTBackend) Close() error {
	b.client.apiKey = ""
	return nil
}
