package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"assistant-webui-backend/internal/llm"
)

// maxErrorBody caps how much of a provider error body we read.
const maxErrorBody = 8 * 1024

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// transportError classifies a failed request round trip. Cancellation is
// reported as such; everything else means the provider could not be reached.
func transportError(ctx context.Context, t llm.BackendType, op string, err error) error {
	if ctx.Err() != nil {
		return llm.NewBackendError(t, op, fmt.Errorf("%w: %v", llm.ErrContextCanceled, ctx.Err()))
	}
	return llm.NewBackendError(t, op, fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err))
}

// statusError maps a non-2xx provider response to the error taxonomy.
// The body is consumed so the caller can close the response afterwards.
func statusError(t llm.BackendType, op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := extractAPIErrorMessage(body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewBackendErrorWithCode(t, op,
			fmt.Errorf("%w: %s", llm.ErrAuthentication, nonEmpty(msg, "invalid or missing API key")),
			resp.StatusCode)
	case http.StatusTooManyRequests:
		return llm.NewBackendErrorWithCode(t, op,
			fmt.Errorf("%w: %s", llm.ErrRateLimited, nonEmpty(msg, "rate limit exceeded")),
			resp.StatusCode)
	case http.StatusNotFound:
		return llm.NewBackendErrorWithCode(t, op,
			fmt.Errorf("%w: %s", llm.ErrModelNotFound, nonEmpty(msg, "not found")),
			resp.StatusCode)
	default:
		return llm.NewBackendErrorWithCode(t, op,
			fmt.Errorf("%w: status %d: %s", llm.ErrProvider, resp.StatusCode, nonEmpty(msg, http.StatusText(resp.StatusCode))),
			resp.StatusCode)
	}
}

// extractAPIErrorMessage pulls the human readable message out of a provider
// error body. OpenAI-compatible APIs use {"error":{"message":...}} while
// some return {"error":"..."} directly; Anthropic matches the former shape.
func extractAPIErrorMessage(body []byte) string {
	var objEnvelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &objEnvelope); err == nil && objEnvelope.Error.Message != "" {
		return objEnvelope.Error.Message
	}

	var strEnvelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &strEnvelope); err == nil && strEnvelope.Error != "" {
		return strEnvelope.Error
	}

	if len(body) > 0 && len(body) < 512 {
		return string(body)
	}
	return ""
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
