package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assistant-webui-backend/internal/llm"
)

// ollamaStub fakes the parts of the Ollama HTTP API the backend uses.
func ollamaStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Heartbeat
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Stream *bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("stub failed to decode chat request: %v", err)
			return
		}

		if req.Model == "missing-model" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":"model '%s' not found, try pulling it first"}`, req.Model)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		if req.Stream != nil && *req.Stream {
			fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":"hi "},"done":false}`+"\n", req.Model)
			fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":"there"},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`+"\n", req.Model)
			return
		}
		fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":"hi there"},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`+"\n", req.Model)
	})

	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[
			{"name":"llama3:latest","size":4661224676,"digest":"abc123"},
			{"name":"mistral:latest","size":4109865159,"digest":"def456"}
		]}`)
	})

	mux.HandleFunc("/api/delete", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name == "missing-model" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model 'missing-model' not found"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","digest":"abc","total":100,"completed":50}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newOllamaForTest(t *testing.T, endpoint string) *OllamaBackend {
	t.Helper()
	cfg := &llm.BackendConfig{Type: llm.BackendOllama, Endpoint: endpoint}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	backend, err := NewOllamaBackend(cfg)
	if err != nil {
		t.Fatalf("NewOllamaBackend() error: %v", err)
	}
	return backend
}

func TestOllamaChat(t *testing.T) {
	srv := ollamaStub(t)
	backend := newOllamaForTest(t, srv.URL)

	resp, err := backend.Chat(context.Background(), &llm.ChatRequest{
		Model:    "llama3",
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	}, nil)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if resp.Message.Content != "hi there" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if !resp.Done || resp.DoneReason != "stop" {
		t.Errorf("done = %v, reason = %q", resp.Done, resp.DoneReason)
	}
	if resp.PromptTokens != 5 || resp.ResponseTokens != 2 {
		t.Errorf("tokens = %d/%d, want 5/2", resp.PromptTokens, resp.ResponseTokens)
	}
}

func TestOllamaChatStreaming(t *testing.T) {
	srv := ollamaStub(t)
	backend := newOllamaForTest(t, srv.URL)

	var streamed strings.Builder
	resp, err := backend.Chat(context.Background(), &llm.ChatRequest{
		Model:    "llama3",
		Stream:   true,
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	}, func(chunk llm.ChatResponse) error {
		streamed.WriteString(chunk.Message.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if streamed.String() != "hi there" {
		t.Errorf("streamed = %q", streamed.String())
	}
	if resp.Message.Content != "hi there" {
		t.Errorf("accumulated content = %q", resp.Message.Content)
	}
}

func TestOllamaModelNotFound(t *testing.T) {
	srv := ollamaStub(t)
	backend := newOllamaForTest(t, srv.URL)

	_, err := backend.Chat(context.Background(), &llm.ChatRequest{
		Model:    "missing-model",
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	}, nil)
	if err == nil {
		t.Fatal("Chat() succeeded, want error")
	}
	if !llm.IsModelNotFound(err) {
		t.Errorf("error = %v, want ErrModelNotFound", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	srv := ollamaStub(t)
	backend := newOllamaForTest(t, srv.URL)

	models, err := backend.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].Name != "llama3:latest" {
		t.Errorf("first model = %q", models[0].Name)
	}
	if models[0].Size != 4661224676 {
		t.Errorf("size = %d", models[0].Size)
	}
}

func TestOllamaPullModel(t *testing.T) {
	srv := ollamaStub(t)
	backend := newOllamaForTest(t, srv.URL)

	var statuses []string
	err := backend.PullModel(context.Background(), "llama3", func(p llm.PullProgress) error {
		statuses = append(statuses, p.Status)
		return nil
	})
	if err != nil {
		t.Fatalf("PullModel() error: %v", err)
	}

	if len(statuses) != 3 || statuses[len(statuses)-1] != "success" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestOllamaDeleteModel(t *testing.T) {
	srv := ollamaStub(t)
	backend := newOllamaForTest(t, srv.URL)

	if err := backend.DeleteModel(context.Background(), "llama3"); err != nil {
		t.Fatalf("DeleteModel() error: %v", err)
	}

	err := backend.DeleteModel(context.Background(), "missing-model")
	if err == nil {
		t.Fatal("DeleteModel() succeeded for missing model")
	}
	if !llm.IsModelNotFound(err) {
		t.Errorf("error = %v, want ErrModelNotFound", err)
	}
}

func TestOllamaChatTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &llm.BackendConfig{Type: llm.BackendOllama, Endpoint: srv.URL, Timeout: 50 * time.Millisecond}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	backend, err := NewOllamaBackend(cfg)
	if err != nil {
		t.Fatalf("NewOllamaBackend() error: %v", err)
	}

	_, err = backend.Chat(context.Background(), &llm.ChatRequest{
		Model:    "llama3",
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	}, nil)
	if err == nil {
		t.Fatal("Chat() succeeded, want timeout error")
	}
	if !llm.IsBackendUnavailable(err) {
		t.Errorf("error = %v, want ErrBackendUnavailable", err)
	}
}

func TestOllamaPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	backend := newOllamaForTest(t, url)
	err := backend.Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() succeeded against closed server")
	}
	if !llm.IsBackendUnavailable(err) {
		t.Errorf("error = %v, want ErrBackendUnavailable", err)
	}
	if backend.Available(context.Background()) {
		t.Error("Available() = true against closed server")
	}
}

func TestOllamaSystemPromptInjection(t *testing.T) {
	var gotMessages []map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]string `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotMessages = req.Messages
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"ok"},"done":true}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	backend := newOllamaForTest(t, srv.URL)
	_, err := backend.Chat(context.Background(), &llm.ChatRequest{
		Model:        "llama3",
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: "user", Content: "hello"}},
	}, nil)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if len(gotMessages) != 2 {
		t.Fatalf("got %d messages, want 2", len(gotMessages))
	}
	if gotMessages[0]["role"] != "system" || gotMessages[0]["content"] != "be brief" {
		t.Errorf("leading message = %v", gotMessages[0])
	}
}
