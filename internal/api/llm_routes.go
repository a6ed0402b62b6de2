package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"assistant-webui-backend/internal/assistants"
	"assistant-webui-backend/internal/llm"
)

// LLMService provides unified HTTP handlers for multi-backend chat.
type LLMService struct {
	manager    *llm.Manager
	factory    llm.BackendFactory
	assistants *assistants.Store
	db         *sql.DB
}

// NewLLMService creates a new LLM service.
func NewLLMService(manager *llm.Manager, factory llm.BackendFactory, store *assistants.Store, db *sql.DB) *LLMService {
	return &LLMService{
		manager:    manager,
		factory:    factory,
		assistants: store,
		db:         db,
	}
}

// SetupRoutes registers all LLM routes on the given router group.
func (s *LLMService) SetupRoutes(r *gin.RouterGroup) {
	r.GET("/backends", s.ListBackendsHandler())
	r.GET("/backends/available", s.AvailableBackendsHandler())
	r.PUT("/backends/primary", s.SetPrimaryBackendHandler())

	r.POST("/chat", s.ChatHandler())
}

// chatAPIRequest is the request body for POST /chat. The API key arrives
// with each request and lives only for the duration of the call; it is
// never stored, logged or echoed back.
type chatAPIRequest struct {
	Backend     llm.BackendType `json:"backend"`
	Model       string          `json:"model"`
	APIKey      string          `json:"api_key"`
	Endpoint    string          `json:"endpoint"`
	AssistantID string          `json:"assistant_id"`
	Username    string          `json:"username"`
	ChatID      string          `json:"chat_id"`

	Messages     []llm.Message `json:"messages"`
	SystemPrompt string        `json:"system_prompt"`
	Stream       bool          `json:"stream"`
	Temperature  *float64      `json:"temperature,omitempty"`
	MaxTokens    *int          `json:"max_tokens,omitempty"`
}

// errorStatus maps backend errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case llm.IsMissingCredential(err):
		return http.StatusBadRequest
	case llm.IsAuthentication(err):
		return http.StatusUnauthorized
	case llm.IsRateLimited(err):
		return http.StatusTooManyRequests
	case llm.IsModelNotFound(err):
		return http.StatusNotFound
	case llm.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ListBackendsHandler returns all long-lived backends with availability.
func (s *LLMService) ListBackendsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		infos := s.manager.ListInfo(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"backends": infos})
	}
}

// AvailableBackendsHandler returns every backend kind the server can
// dispatch to. Hosted kinds are always listed since they need only a
// caller-supplied credential; local availability is probed.
func (s *LLMService) AvailableBackendsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		type kindInfo struct {
			Type        llm.BackendType `json:"type"`
			Hosted      bool            `json:"hosted"`
			NeedsKey    bool            `json:"needs_key"`
			Available   bool            `json:"available"`
			DefaultName string          `json:"default_model"`
		}

		kinds := []llm.BackendType{llm.BackendOllama, llm.BackendClaude, llm.BackendChatGPT, llm.BackendGrok}
		result := make([]kindInfo, 0, len(kinds))
		for _, t := range kinds {
			info := kindInfo{
				Type:        t,
				Hosted:      t.Hosted(),
				NeedsKey:    t.Hosted(),
				Available:   t.Hosted(),
				DefaultName: llm.DefaultModel(t),
			}
			if !t.Hosted() {
				if b, ok := s.manager.Get(string(t)); ok {
					info.Available = b.Available(ctx)
				} else {
					info.Available = false
				}
			}
			result = append(result, info)
		}

		c.JSON(http.StatusOK, gin.H{"backends": result})
	}
}

// SetPrimaryBackendHandler sets the primary backend.
func (s *LLMService) SetPrimaryBackendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		if err := s.manager.SetPrimary(req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "primary": req.Name})
	}
}

// ChatHandler dispatches a chat request to the selected backend. Hosted
// backends are built per request from the caller's credential and torn
// down afterwards, so no credential outlives the call.
func (s *LLMService) ChatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatAPIRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		if len(req.Messages) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
			return
		}
		if req.Backend == "" {
			req.Backend = llm.BackendOllama
		}

		systemPrompt := req.SystemPrompt
		if systemPrompt == "" && req.AssistantID != "" {
			a, err := s.assistants.Get(req.Username, req.AssistantID)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "assistant not found: " + req.AssistantID})
				return
			}
			systemPrompt = a.EffectiveSystemPrompt()
		}

		chatReq := &llm.ChatRequest{
			Model:        req.Model,
			Messages:     req.Messages,
			SystemPrompt: systemPrompt,
			Stream:       req.Stream,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		}

		backend, cleanup, err := s.resolveBackend(&req)
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		defer cleanup()

		start := time.Now()
		var resp *llm.ChatResponse
		if req.Stream {
			resp, err = s.handleStreamingChat(c, backend, chatReq)
		} else {
			resp, err = backend.Chat(c.Request.Context(), chatReq, nil)
			if err != nil {
				s.recordUsage(&req, nil, time.Since(start), err)
				c.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, resp)
		}

		s.recordUsage(&req, resp, time.Since(start), err)
	}
}

// resolveBackend returns the backend for a request plus a cleanup func.
// Local backends come from the long-lived manager registry; hosted ones
// are constructed fresh from the request config.
func (s *LLMService) resolveBackend(req *chatAPIRequest) (llm.Backend, func(), error) {
	if !req.Backend.Hosted() {
		if b, ok := s.manager.Get(string(req.Backend)); ok && req.Endpoint == "" {
			return b, func() {}, nil
		}
	}

	cfg := &llm.BackendConfig{
		Type:     req.Backend,
		Endpoint: req.Endpoint,
		Model:    req.Model,
		APIKey:   req.APIKey,
	}
	backend, err := s.factory.Create(cfg)
	if err != nil {
		return nil, nil, err
	}
	return backend, func() { backend.Close() }, nil
}

// handleStreamingChat writes the response as newline-delimited JSON.
func (s *LLMService) handleStreamingChat(c *gin.Context, backend llm.Backend, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")

	ctx := c.Request.Context()
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, nil
	}

	resp, err := backend.Chat(ctx, req, func(chunk llm.ChatResponse) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(append(data, '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, llm.ErrContextCanceled) {
		// Headers are already out, so the error rides the stream.
		errResp := gin.H{"error": err.Error()}
		data, _ := json.Marshal(errResp)
		c.Writer.Write(append(data, '\n'))
		flusher.Flush()
		return nil, err
	}

	return resp, err
}

// recordUsage writes a usage event. Only token counts and error kind are
// stored; message content and credentials never touch the database.
func (s *LLMService) recordUsage(req *chatAPIRequest, resp *llm.ChatResponse, elapsed time.Duration, chatErr error) {
	if s.db == nil {
		return
	}

	promptTokens, responseTokens := 0, 0
	if resp != nil {
		promptTokens = resp.PromptTokens
		responseTokens = resp.ResponseTokens
	}

	success := 1
	errorKind := ""
	if chatErr != nil {
		success = 0
		errorKind = classifyErrorKind(chatErr)
	}

	_, err := s.db.Exec(
		`INSERT INTO usage_events (id, backend, model, assistant_id, prompt_tokens, response_tokens, duration_ms, success, error_kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(req.Backend), req.Model, req.AssistantID,
		promptTokens, responseTokens, elapsed.Milliseconds(), success, errorKind,
	)
	if err != nil {
		log.Printf("Warning: failed to record usage event: %v", err)
	}
}

// classifyErrorKind names the error category for analytics.
func classifyErrorKind(err error) string {
	switch {
	case llm.IsMissingCredential(err):
		return "missing_credential"
	case llm.IsAuthentication(err):
		return "authentication"
	case llm.IsRateLimited(err):
		return "rate_limited"
	case llm.IsBackendUnavailable(err):
		return "unavailable"
	case llm.IsMalformedResponse(err):
		return "malformed_response"
	case llm.IsModelNotFound(err):
		return "model_not_found"
	default:
		return "provider"
	}
}
