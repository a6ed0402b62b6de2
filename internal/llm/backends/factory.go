// Package backends provides implementations of the llm.Backend interface,
// one per provider: Ollama (local), Claude (Anthropic), ChatGPT (OpenAI)
// and Grok (xAI).
package backends

import (
	"fmt"

	"assistant-webui-backend/internal/llm"
)

// DefaultFactory is the standard backend factory implementation.
// It creates Backend instances based on configuration type.
type DefaultFactory struct{}

// NewDefaultFactory creates a new DefaultFactory.
func NewDefaultFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// Create creates a Backend instance based on the configuration type.
// Config validation happens here, so a hosted kind without a credential
// fails with llm.ErrMissingCredential before any backend is constructed.
func (f *DefaultFactory) Create(cfg *llm.BackendConfig) (llm.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case llm.BackendOllama:
		return NewOllamaBackend(cfg)

	case llm.BackendClaude:
		return NewClaudeBackend(cfg)

	case llm.BackendChatGPT:
		return NewChatGPTBackend(cfg)

	case llm.BackendGrok:
		return NewGrokBackend(cfg)

	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
