// Package llm provides a unified abstraction over the text-generation
// backends the assistant UI can talk to: a local Ollama server and the
// hosted Claude (Anthropic), ChatGPT (OpenAI) and Grok (xAI) chat APIs.
// It defines common types, the Backend interface and a shared error
// taxonomy so the HTTP layer can treat all four interchangeably.
package llm

import (
	"time"
)

// BackendType identifies a text-generation backend.
type BackendType string

const (
	// BackendOllama represents a local Ollama server.
	BackendOllama BackendType = "ollama"
	// BackendClaude represents the Anthropic Messages API.
	BackendClaude BackendType = "claude"
	// BackendChatGPT represents the OpenAI Chat Completions API.
	BackendChatGPT BackendType = "chatgpt"
	// BackendGrok represents the xAI Chat Completions API.
	BackendGrok BackendType = "grok"
)

// Hosted reports whether the backend is a cloud API that requires a credential.
func (t BackendType) Hosted() bool {
	return t == BackendClaude || t == BackendChatGPT || t == BackendGrok
}

// Message represents a single turn in a conversation.
type Message struct {
	// Role identifies the message author: "system", "user" or "assistant".
	Role string `json:"role"`
	// Content is the text content of the message.
	Content string `json:"content"`
}

// ChatRequest contains parameters for a chat completion request.
type ChatRequest struct {
	// Model is the name of the model to use. Empty selects the backend default.
	Model string `json:"model"`
	// Messages is the conversation history, oldest first.
	Messages []Message `json:"messages"`
	// SystemPrompt, when set, is injected the way each provider expects:
	// a leading system message for OpenAI-style APIs, the top-level system
	// field for Anthropic. Any system turn already present in Messages wins.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Stream enables incremental delivery via the callback when true.
	Stream bool `json:"stream"`
	// Temperature controls randomness.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens limits the response length. Anthropic requires a value;
	// backends apply their own default when nil.
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// ChatResponse contains the result of a chat completion.
type ChatResponse struct {
	// Model is the name of the model that generated the response.
	Model string `json:"model"`
	// Message is the assistant's reply. During streaming each callback
	// carries the incremental chunk; the returned response carries the
	// accumulated text.
	Message Message `json:"message"`
	// Done indicates whether generation is complete.
	Done bool `json:"done"`
	// DoneReason explains why generation stopped (e.g. "stop", "length").
	DoneReason string `json:"done_reason,omitempty"`
	// PromptTokens is the number of tokens in the prompt, when reported.
	PromptTokens int `json:"prompt_eval_count,omitempty"`
	// ResponseTokens is the number of tokens in the response, when reported.
	ResponseTokens int `json:"eval_count,omitempty"`
}

// StreamCallback is called for each chunk during streaming responses.
type StreamCallback func(response ChatResponse) error

// ModelInfo contains basic information about a model a backend can serve.
type ModelInfo struct {
	// Name is the model identifier.
	Name string `json:"name"`
	// ModifiedAt is when the model was last modified, when known.
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	// Size is the model size in bytes (local backends only).
	Size int64 `json:"size,omitempty"`
	// Digest is the model's content hash (local backends only).
	Digest string `json:"digest,omitempty"`
}

// PullProgress reports the progress of a model download.
type PullProgress struct {
	// Status describes the current operation (e.g. "downloading", "verifying").
	Status string `json:"status"`
	// Digest is the layer being processed.
	Digest string `json:"digest,omitempty"`
	// Total is the total size in bytes.
	Total int64 `json:"total,omitempty"`
	// Completed is the number of bytes completed.
	Completed int64 `json:"completed,omitempty"`
}

// PullCallback is called for each progress update during model downloads.
type PullCallback func(progress PullProgress) error

// BackendInfo describes a backend for API responses. Credentials never
// appear here.
type BackendInfo struct {
	Name      string      `json:"name"`
	Type      BackendType `json:"type"`
	Available bool        `json:"available"`
	Primary   bool        `json:"primary"`
}
