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

// openAIChatRequest represents the OpenAI-compatible chat request format,
// used by both the ChatGPT and Grok backends.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
}

// openAIChatMessage represents a message in OpenAI format.
type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatResponse represents a non-streaming OpenAI chat response.
type openAIChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int               `json:"index"`
		Message      openAIChatMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIStreamChunk represents a streaming chunk in SSE format.
type openAIStreamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// openAICompatClient carries the protocol-level plumbing shared by the
// OpenAI-compatible hosted providers. Each provider backend wraps one of
// these with its own type identity and defaults. The API key lives only
// on this struct for the lifetime of the backend instance and is never
// written anywhere else.
type openAICompatClient struct {
	backendType llm.BackendType
	baseURL     string
	model       string
	apiKey      string
	httpClient  *http.Client
}

func newOpenAICompatClient(t llm.BackendType, cfg *llm.BackendConfig) *openAICompatClient {
	return &openAICompatClient{
		backendType: t,
		baseURL:     strings.TrimSuffix(cfg.Endpoint, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		httpClient:  newHTTPClient(cfg.Timeout),
	}
}

// doRequest makes an HTTP request with Bearer authentication.
func (c *openAICompatClient) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// ping checks reachability by listing models. It is the cheapest
// authenticated endpoint both providers expose.
func (c *openAICompatClient) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return llm.NewBackendError(c.backendType, "Ping", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return transportError(ctx, c.backendType, "Ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(c.backendType, "Ping", resp)
	}
	return nil
}

// chat performs a chat completion request. Exactly one HTTP request goes
// out per call; failures are classified, never retried.
func (c *openAICompatClient) chat(ctx context.Context, req *llm.ChatRequest, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	apiReq := openAIChatRequest{
		Model:       model,
		Messages:    c.convertMessages(req),
		Stream:      req.Stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, llm.NewBackendError(c.backendType, "Chat", fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewBackendError(c.backendType, "Chat", err)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.doRequest(httpReq)
	if err != nil {
		return nil, transportError(ctx, c.backendType, "Chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.backendType, "Chat", resp)
	}

	if req.Stream && callback != nil {
		return c.handleStreamingResponse(ctx, resp.Body, model, callback)
	}
	return c.handleNonStreamingResponse(resp.Body, model)
}

// convertMessages maps the request history to OpenAI format. A non-empty
// SystemPrompt is injected as a leading system message unless the history
// already starts with one.
func (c *openAICompatClient) convertMessages(req *llm.ChatRequest) []openAIChatMessage {
	messages := make([]openAIChatMessage, 0, len(req.Messages)+1)
	hasSystem := len(req.Messages) > 0 && req.Messages[0].Role == "system"
	if req.SystemPrompt != "" && !hasSystem {
		messages = append(messages, openAIChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, openAIChatMessage{Role: m.Role, Content: m.Content})
	}
	return messages
}

// handleStreamingResponse processes SSE streaming responses.
func (c *openAICompatClient) handleStreamingResponse(ctx context.Context, body io.Reader, model string, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var fullContent strings.Builder
	var promptTokens, responseTokens int
	doneReason := ""

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, llm.NewBackendError(c.backendType, "Chat", llm.ErrContextCanceled)
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		fullContent.WriteString(choice.Delta.Content)

		if chunk.Usage != nil {
			promptTokens = chunk.Usage.PromptTokens
			responseTokens = chunk.Usage.CompletionTokens
		}

		done := choice.FinishReason != nil
		if done {
			doneReason = *choice.FinishReason
		}

		chunkResp := llm.ChatResponse{
			Model: model,
			Message: llm.Message{
				Role:    "assistant",
				Content: choice.Delta.Content,
			},
			Done:           done,
			DoneReason:     doneReason,
			PromptTokens:   promptTokens,
			ResponseTokens: responseTokens,
		}
		if err := callback(chunkResp); err != nil {
			return nil, llm.NewBackendError(c.backendType, "Chat", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, llm.NewBackendError(c.backendType, "Chat",
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
func (c *openAICompatClient) handleNonStreamingResponse(body io.Reader, model string) (*llm.ChatResponse, error) {
	var resp openAIChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, llm.NewBackendError(c.backendType, "Chat",
			fmt.Errorf("%w: failed to decode response: %v", llm.ErrMalformedResponse, err))
	}

	if len(resp.Choices) == 0 {
		return nil, llm.NewBackendError(c.backendType, "Chat",
			fmt.Errorf("%w: %s response has no choices", llm.ErrMalformedResponse, c.backendType))
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" && choice.FinishReason != "length" {
		return nil, llm.NewBackendError(c.backendType, "Chat",
			fmt.Errorf("%w: %s response missing choices[0].message.content", llm.ErrMalformedResponse, c.backendType))
	}

	return &llm.ChatResponse{
		Model: model,
		Message: llm.Message{
			Role:    "assistant",
			Content: choice.Message.Content,
		},
		Done:           true,
		DoneReason:     choice.FinishReason,
		PromptTokens:   resp.Usage.PromptTokens,
		ResponseTokens: resp.Usage.CompletionTokens,
	}, nil
}

// listModels returns the models visible to the configured credential.
func (c *openAICompatClient) listModels(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, llm.NewBackendError(c.backendType, "ListModels", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, transportError(ctx, c.backendType, "ListModels", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.backendType, "ListModels", resp)
	}

	var modelsData struct {
		Data []struct {
			ID      string `json:"id"`
			Created int64  `json:"created"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsData); err != nil {
		return nil, llm.NewBackendError(c.backendType, "ListModels",
			fmt.Errorf("%w: failed to decode response: %v", llm.ErrMalformedResponse, err))
	}

	models := make([]llm.ModelInfo, len(modelsData.Data))
	for i, m := range modelsData.Data {
		models[i] = llm.ModelInfo{Name: m.ID}
	}
	return models, nil
}
