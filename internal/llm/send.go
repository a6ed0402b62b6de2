package llm

import (
	"context"
)

// Send performs a one-shot, non-streaming chat completion against the
// backend described by cfg. It validates the config (returning
// ErrMissingCredential for hosted kinds without a key, before any network
// call), builds the backend through the factory, issues exactly one request
// and tears the backend down again. Hosted backends are intentionally
// per-call: the credential lives only in cfg for the duration of the call.
func Send(ctx context.Context, factory BackendFactory, cfg *BackendConfig, req *ChatRequest) (*ChatResponse, error) {
	backend, err := factory.Create(cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	req.Stream = false
	return backend.Chat(ctx, req, nil)
}
