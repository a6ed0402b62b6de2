package backends

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"assistant-webui-backend/internal/llm"
)

// OllamaBackend implements the llm.Backend interface for a local Ollama
// server. It also implements PullableBackend and DeletableBackend for
// model management.
type OllamaBackend struct {
	client   *api.Client
	name     string
	endpoint string
	model    string
}

// Compile-time interface assertions
var (
	_ llm.Backend          = (*OllamaBackend)(nil)
	_ llm.PullableBackend  = (*OllamaBackend)(nil)
	_ llm.DeletableBackend = (*OllamaBackend)(nil)
)

// NewOllamaBackend creates a new Ollama backend instance.
func NewOllamaBackend(cfg *llm.BackendConfig) (*OllamaBackend, error) {
	if cfg.Type != llm.BackendOllama {
		return nil, fmt.Errorf("invalid backend type: expected %s, got %s", llm.BackendOllama, cfg.Type)
	}

	baseURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL %q: %w", cfg.Endpoint, err)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}
	client := api.NewClient(baseURL, httpClient)

	name := cfg.Name
	if name == "" {
		name = "ollama"
	}

	return &OllamaBackend{
		client:   client,
		name:     name,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
	}, nil
}

// Name returns the backend instance name.
func (b *OllamaBackend) Name() string {
	return b.name
}

// Type returns the backend type identifier.
func (b *OllamaBackend) Type() llm.BackendType {
	return llm.BackendOllama
}

// Ping checks if Ollama is available.
func (b *OllamaBackend) Ping(ctx context.Context) error {
	if err := b.client.Heartbeat(ctx); err != nil {
		return llm.NewBackendError(llm.BackendOllama, "Ping", fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err))
	}
	return nil
}

// Available checks if the backend is reachable.
func (b *OllamaBackend) Available(ctx context.Context) bool {
	return b.Ping(ctx) == nil
}

// Chat performs a chat completion request.
func (b *OllamaBackend) Chat(ctx context.Context, req *llm.ChatRequest, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	ollamaReq := b.convertChatRequest(req)

	var finalResponse *llm.ChatResponse
	var fullContent strings.Builder

	err := b.client.Chat(ctx, ollamaReq, func(resp api.ChatResponse) error {
		fullContent.WriteString(resp.Message.Content)

		llmResp := llm.ChatResponse{
			Model: resp.Model,
			Message: llm.Message{
				Role:    resp.Message.Role,
				Content: resp.Message.Content,
			},
			Done:           resp.Done,
			DoneReason:     resp.DoneReason,
			PromptTokens:   resp.PromptEvalCount,
			ResponseTokens: resp.EvalCount,
		}

		final := llmResp
		final.Message.Content = fullContent.String()
		finalResponse = &final

		if callback != nil && req.Stream {
			return callback(llmResp)
		}
		return nil
	})

	if err != nil {
		return nil, b.classifyError(ctx, "Chat", err)
	}

	if finalResponse == nil {
		return nil, llm.NewBackendError(llm.BackendOllama, "Chat",
			fmt.Errorf("%w: ollama returned no response", llm.ErrMalformedResponse))
	}

	return finalResponse, nil
}

// convertChatRequest converts llm.ChatRequest to api.ChatRequest. A
// non-empty SystemPrompt becomes a leading system message unless the
// history already starts with one.
func (b *OllamaBackend) convertChatRequest(req *llm.ChatRequest) *api.ChatRequest {
	model := req.Model
	if model == "" {
		model = b.model
	}

	hasSystem := len(req.Messages) > 0 && req.Messages[0].Role == "system"
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" && !hasSystem {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	ollamaReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &req.Stream,
	}

	opts := make(map[string]any)
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if len(opts) > 0 {
		ollamaReq.Options = opts
	}

	return ollamaReq
}

// classifyError maps Ollama client errors to the shared taxonomy.
func (b *OllamaBackend) classifyError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return llm.NewBackendError(llm.BackendOllama, op, llm.ErrContextCanceled)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return llm.NewBackendError(llm.BackendOllama, op, fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err))
	}
	if strings.Contains(err.Error(), "not found") {
		return llm.NewBackendError(llm.BackendOllama, op, fmt.Errorf("%w: %v", llm.ErrModelNotFound, err))
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return llm.NewBackendError(llm.BackendOllama, op, fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err))
	}
	return llm.NewBackendError(llm.BackendOllama, op, err)
}

// ListModels returns all locally available models.
func (b *OllamaBackend) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	resp, err := b.client.List(ctx)
	if err != nil {
		return nil, b.classifyError(ctx, "ListModels", err)
	}

	models := make([]llm.ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = llm.ModelInfo{
			Name:       m.Name,
			ModifiedAt: m.ModifiedAt,
			Size:       m.Size,
			Digest:     m.Digest,
		}
	}
	return models, nil
}

// PullModel downloads a model from the Ollama registry.
func (b *OllamaBackend) PullModel(ctx context.Context, name string, callback llm.PullCallback) error {
	err := b.client.Pull(ctx, &api.PullRequest{Name: name}, func(resp api.ProgressResponse) error {
		if callback != nil {
			return callback(llm.PullProgress{
				Status:    resp.Status,
				Digest:    resp.Digest,
				Total:     resp.Total,
				Completed: resp.Completed,
			})
		}
		return nil
	})

	if err != nil {
		return b.classifyError(ctx, "PullModel", err)
	}
	return nil
}

// DeleteModel removes a model from the local Ollama store.
func (b *OllamaBackend) DeleteModel(ctx context.Context, name string) error {
	if err := b.client.Delete(ctx, &api.DeleteRequest{Name: name}); err != nil {
		return b.classifyError(ctx, "DeleteModel", err)
	}
	return nil
}

// Close releases any resources held by the backend.
func (b *OllamaBackend) Close() error {
	return nil
}
