package llm

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

type stubBackend struct {
	name    string
	kind    BackendType
	pingErr error
	closed  bool
	chats   int
}

func (s *stubBackend) Name() string                       { return s.name }
func (s *stubBackend) Type() BackendType                  { return s.kind }
func (s *stubBackend) Ping(ctx context.Context) error     { return s.pingErr }
func (s *stubBackend) Available(ctx context.Context) bool { return s.pingErr == nil }
func (s *stubBackend) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return nil, nil
}
func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}
func (s *stubBackend) Chat(ctx context.Context, req *ChatRequest, callback StreamCallback) (*ChatResponse, error) {
	s.chats++
	return &ChatResponse{
		Message: Message{Role: "assistant", Content: "ok"},
		Done:    true,
	}, nil
}

type stubFactory struct {
	backend Backend
	created int
}

func (f *stubFactory) Create(cfg *BackendConfig) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.created++
	return f.backend, nil
}

func settingsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT NOT NULL DEFAULT (datetime('now')))`); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestManagerRegisterAndPrimary(t *testing.T) {
	m := NewManager(nil)

	a := &stubBackend{name: "a", kind: BackendOllama}
	b := &stubBackend{name: "b", kind: BackendOllama}

	if err := m.RegisterBackend(a); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterBackend(b); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterBackend(&stubBackend{name: "a"}); err == nil {
		t.Error("duplicate registration succeeded")
	}

	// First registered becomes primary by default
	if got := m.Primary(); got == nil || got.Name() != "a" {
		t.Errorf("primary = %v", got)
	}

	if err := m.SetPrimary("b"); err != nil {
		t.Fatal(err)
	}
	if got := m.Primary(); got.Name() != "b" {
		t.Errorf("primary = %q after SetPrimary", got.Name())
	}
	if err := m.SetPrimary("missing"); err == nil {
		t.Error("SetPrimary(missing) succeeded")
	}
}

func TestManagerRejectsHostedBackends(t *testing.T) {
	m := NewManager(nil)

	for _, kind := range []BackendType{BackendClaude, BackendChatGPT, BackendGrok} {
		if err := m.RegisterBackend(&stubBackend{name: string(kind), kind: kind}); err == nil {
			t.Errorf("RegisterBackend accepted hosted kind %s", kind)
		}
		if _, ok := m.Get(string(kind)); ok {
			t.Errorf("hosted backend %s entered the registry", kind)
		}
	}
}

func TestManagerPersistsPrimary(t *testing.T) {
	db := settingsDB(t)

	m := NewManager(db)
	m.RegisterBackend(&stubBackend{name: "ollama", kind: BackendOllama})
	if err := m.SetPrimary("ollama"); err != nil {
		t.Fatal(err)
	}

	var value string
	if err := db.QueryRow(`SELECT value FROM settings WHERE key = 'primary_backend'`).Scan(&value); err != nil {
		t.Fatal(err)
	}
	if value != "ollama" {
		t.Errorf("persisted primary = %q", value)
	}
}

func TestManagerInitFromConfig(t *testing.T) {
	backend := &stubBackend{name: "ollama", kind: BackendOllama}
	factory := &stubFactory{backend: backend}

	m := NewManager(nil)
	cfg := &Config{
		Backends:       []BackendConfig{{Type: BackendOllama, Name: "ollama", Enabled: true, Primary: true}},
		DefaultBackend: "ollama",
	}
	if err := m.InitFromConfig(cfg, factory); err != nil {
		t.Fatalf("InitFromConfig() error: %v", err)
	}

	if factory.created != 1 {
		t.Errorf("factory created %d backends, want 1", factory.created)
	}
	if got := m.Primary(); got == nil || got.Name() != "ollama" {
		t.Errorf("primary = %v", got)
	}

	infos := m.ListInfo(context.Background())
	if len(infos) != 1 || !infos[0].Primary || !infos[0].Available {
		t.Errorf("infos = %+v", infos)
	}
}

func TestManagerClose(t *testing.T) {
	backend := &stubBackend{name: "ollama", kind: BackendOllama}
	m := NewManager(nil)
	m.RegisterBackend(backend)

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !backend.closed {
		t.Error("backend not closed")
	}
	if m.Primary() != nil {
		t.Error("primary survives Close")
	}
	if len(m.List()) != 0 {
		t.Error("registry survives Close")
	}
}

func TestSend(t *testing.T) {
	backend := &stubBackend{name: "chatgpt", kind: BackendChatGPT}
	factory := &stubFactory{backend: backend}

	resp, err := Send(context.Background(), factory, &BackendConfig{
		Type:   BackendChatGPT,
		APIKey: "sk-test",
	}, &ChatRequest{
		Stream:   true, // forced off for one-shot sends
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if backend.chats != 1 {
		t.Errorf("backend saw %d chat calls, want exactly 1", backend.chats)
	}
	if !backend.closed {
		t.Error("Send did not close the backend")
	}
}

func TestSendMissingCredential(t *testing.T) {
	factory := &stubFactory{backend: &stubBackend{}}

	_, err := Send(context.Background(), factory, &BackendConfig{Type: BackendClaude}, &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatal("Send() succeeded without credential")
	}
	if !IsMissingCredential(err) {
		t.Errorf("error = %v, want ErrMissingCredential", err)
	}
	if factory.created != 0 {
		t.Error("factory created a backend despite missing credential")
	}
}
