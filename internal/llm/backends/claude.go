package backends

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"assistant-webui-backend/internal/llm"
)

// anthropicVersion is the API version header Anthropic requires on
// every request.
const anthropicVersion = "2023-06-01"

// defaultClaudeMaxTokens applies when the caller does not set a limit.
// The Messages API rejects requests without max_tokens.
const defaultClaudeMaxTokens = 4096

// anthropicMessagesRequest represents the Anthropic Messages API request.
// Unlike the OpenAI format, the system prompt is a top-level field and
// must not appear in the messages array.
type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

// anthropicMessage represents a message in Anthropic format.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicMessagesResponse represents a non-streaming Messages API response.
type anthropicMessagesResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicStreamEvent represents one SSE data payload. The Messages API
// streams typed events; only a few carry text or usage.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ClaudeBackend implements the llm.Backend interface for the Anthropic
// Messages API. Instances are short-lived: the HTTP layer builds one per
// request from the caller's credential and closes it afterwards.
type ClaudeBackend struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// Compile-time interface assertion
var _ llm.Backend = (*ClaudeBackend)(nil)

// NewClaudeBackend creates a Claude backend from a validated config.
func NewClaudeBackend(cfg *llm.BackendConfig) (*ClaudeBackend, error) {
	if cfg.Type != llm.BackendClaude {
		return nil, fmt.Errorf("invalid backend type: expected %s, got %s", llm.BackendClaude, cfg.Type)
	}

	name := cfg.Name
	if name == "" {
		name = "claude"
	}

	return &ClaudeBackend{
		name:       name,
		baseURL:    strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

// Name returns the backend instance name.
func (b *ClaudeBackend) Name() string {
	return b.name
}

// Type returns the backend type identifier.
func (b *ClaudeBackend) Type() llm.BackendType {
	return llm.BackendClaude
}

// doRequest makes an HTTP request with Anthropic authentication headers.
func (b *ClaudeBackend) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	return b.httpClient.Do(req)
}

// Ping checks if the Anthropic API is reachable with the configured
// credential. Anthropic has no cheap list endpoint, so this sends a
// minimal one-token message.
func (b *ClaudeBackend) Ping(ctx context.Context) error {
	probe := anthropicMessagesRequest{
		Model:     b.model,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
	}

	body, err := json.Marshal(probe)
	if err != nil {
		return llm.NewBackendError(llm.BackendClaude, "Ping", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return llm.NewBackendError(llm.BackendClaude, "Ping", err)
	}

	resp, err := b.doRequest(req)
	if err != nil {
		return transportError(ctx, llm.BackendClaude, "Ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(llm.BackendClaude, "Ping", resp)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// Available checks if the backend can serve requests.
func (b *ClaudeBackend) Available(ctx context.Context) bool {
	return b.Ping(ctx) == nil
}

// Chat performs a chat completion request. Exactly one HTTP request goes
// out per call; failures are classified, never retried.
func (b *ClaudeBackend) Chat(ctx context.Context, req *llm.ChatRequest, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	apiReq := b.convertRequest(req, model)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, llm.NewBackendError(llm.BackendClaude, "Chat", fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewBackendError(llm.BackendClaude, "Chat", err)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := b.doRequest(httpReq)
	if err != nil {
		return nil, transportError(ctx, llm.BackendClaude, "Chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(llm.BackendClaude, "Chat", resp)
	}

	if req.Stream && callback != nil {
		return b.handleStreamingResponse(ctx, resp.Body, model, callback)
	}
	return b.handleNonStreamingResponse(resp.Body, model)
}

// convertRequest maps the request to Anthropic format. System turns are
// hoisted out of the message list into the top-level system field; a
// system turn already present in the history wins over SystemPrompt.
func (b *ClaudeBackend) convertRequest(req *llm.ChatRequest, model string) anthropicMessagesRequest {
	system := req.SystemPrompt
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := defaultClaudeMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return anthropicMessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      system,
		Stream:      req.Stream,
		Temperature: req.Temperature,
	}
}

// handleStreamingResponse processes Messages API SSE events. Text arrives
// in content_block_delta events; usage and stop reason trail in
// message_delta.
func (b *ClaudeBackend) handleStreamingResponse(ctx context.Context, body io.Reader, model string, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var fullContent strings.Builder
	var promptTokens, responseTokens int
	doneReason := ""

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, llm.NewBackendError(llm.BackendClaude, "Chat", llm.ErrContextCanceled)
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			promptTokens = event.Message.Usage.InputTokens

		case "content_block_delta":
			if event.Delta.Type != "text_delta" {
				continue
			}
			fullContent.WriteString(event.Delta.Text)
			chunk := llm.ChatResponse{
				Model: model,
				Message: llm.Message{
					Role:    "assistant",
					Content: event.Delta.Text,
				},
				PromptTokens: promptTokens,
			}
			if err := callback(chunk); err != nil {
				return nil, llm.NewBackendError(llm.BackendClaude, "Chat", err)
			}

		case "message_delta":
			doneReason = event.Delta.StopReason
			responseTokens = event.Usage.OutputTokens

		case "error":
			return nil, llm.NewBackendError(llm.BackendClaude, "Chat",
				fmt.Errorf("%w: %s", llm.ErrProvider, event.Error.Message))

		case "message_stop":
			// Final event, nothing to extract.
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, llm.NewBackendError(llm.BackendClaude, "Chat",
			fmt.Errorf("%w: stream read: %v", llm.ErrBackendUnavailable, err))
	}

	return &llm.ChatResponse{
		Model: model,
		Message: llm.Message{
			Role:    "assistant",
			Content: fullContent.String(),
		},
		Done:           true,
		DoneReason:     doneReason,
		PromptTokens:   promptTokens,
		ResponseTokens: responseTokens,
	}, nil
}

// handleNonStreamingResponse processes non-streaming responses.
func (b *ClaudeBackend) handleNonStreamingResponse(body io.Reader, model string) (*llm.ChatResponse, error) {
	var resp anthropicMessagesResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, llm.NewBackendError(llm.BackendClaude, "Chat",
			fmt.Errorf("%w: failed to decode response: %v", llm.ErrMalformedResponse, err))
	}

	if len(resp.Content) == 0 {
		return nil, llm.NewBackendError(llm.BackendClaude, "Chat",
			fmt.Errorf("%w: claude response has no content blocks", llm.ErrMalformedResponse))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, llm.NewBackendError(llm.BackendClaude, "Chat",
			fmt.Errorf("%w: claude response missing content[0].text", llm.ErrMalformedResponse))
	}

	return &llm.ChatResponse{
		Model: model,
		Message: llm.Message{
			Role:    "assistant",
			Content: text.String(),
		},
		Done:           true,
		DoneReason:     resp.StopReason,
		PromptTokens:   resp.Usage.InputTokens,
		ResponseTokens: resp.Usage.OutputTokens,
	}, nil
}

// ListModels returns the fixed catalogue of Claude models. Anthropic does
// not expose a model listing endpoint on this API version.
func (b *ClaudeBackend) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	names := []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
	}
	models := make([]llm.ModelInfo, len(names))
	for i, n := range names {
		models[i] = llm.ModelInfo{Name: n}
	}
	return models, nil
}

// Close releases the credential reference.
func (b *ClaudeBackend) Close() error {
	b.apiKey = ""
	return nil
}
