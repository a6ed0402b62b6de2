package assistants

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store
}

func validAssistant() *Assistant {
	return &Assistant{
		Name:         "Code Helper",
		Description:  "Helps with code review",
		SystemPrompt: "You are an expert code reviewer.",
		Status:       StatusActive,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	a := validAssistant()
	if err := store.Create("alice", a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if a.ID == "" {
		t.Fatal("Create() did not assign an id")
	}
	if a.CreatedAt == "" || a.UpdatedAt == "" {
		t.Error("timestamps not set")
	}

	got, err := store.Get("alice", a.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "Code Helper" {
		t.Errorf("Name = %q", got.Name)
	}

	if _, err := store.Get("alice", "nonexistent"); err != ErrNotFound {
		t.Errorf("Get(nonexistent) error = %v, want ErrNotFound", err)
	}
}

func TestPerUserIsolation(t *testing.T) {
	store := newTestStore(t)

	a := validAssistant()
	if err := store.Create("alice", a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if got := store.List("bob", false); len(got) != 0 {
		t.Errorf("bob sees %d of alice's assistants", len(got))
	}
	if _, err := store.Get("bob", a.ID); err != ErrNotFound {
		t.Errorf("Get() across users error = %v, want ErrNotFound", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Assistant)
	}{
		{"short name", func(a *Assistant) { a.Name = "x" }},
		{"one rune name", func(a *Assistant) { a.Name = "é" }},
		{"empty description", func(a *Assistant) { a.Description = "" }},
		{"long description", func(a *Assistant) { a.Description = strings.Repeat("d", MaxDescriptionLen+1) }},
		{"empty prompt", func(a *Assistant) { a.SystemPrompt = "  " }},
		{"long prompt", func(a *Assistant) { a.SystemPrompt = strings.Repeat("p", MaxSystemPromptLen+1) }},
		{"bad status", func(a *Assistant) { a.Status = "Paused" }},
	}

	store := newTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAssistant()
			tt.mutate(a)
			if err := store.Create("alice", a); err == nil {
				t.Error("Create() accepted invalid assistant")
			}
		})
	}
}

func TestKnowledgeBaseTruncated(t *testing.T) {
	store := newTestStore(t)

	a := validAssistant()
	a.KnowledgeBase = strings.Repeat("k", MaxKnowledgeLen+1000)
	if err := store.Create("alice", a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if len(a.KnowledgeBase) != MaxKnowledgeLen {
		t.Errorf("knowledge base length = %d, want %d", len(a.KnowledgeBase), MaxKnowledgeLen)
	}
}

func TestKnowledgeBaseTruncatedOnRuneBoundary(t *testing.T) {
	store := newTestStore(t)

	// A two-byte rune straddles the cap.
	a := validAssistant()
	a.KnowledgeBase = strings.Repeat("k", MaxKnowledgeLen-1) + "ééé"
	if err := store.Create("alice", a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !utf8.ValidString(a.KnowledgeBase) {
		t.Error("truncated knowledge base is not valid UTF-8")
	}
	if len(a.KnowledgeBase) != MaxKnowledgeLen-1 {
		t.Errorf("knowledge base length = %d, want %d", len(a.KnowledgeBase), MaxKnowledgeLen-1)
	}
}

func TestValidateAcceptsMultibyteLimits(t *testing.T) {
	store := newTestStore(t)

	// Limits count characters, not bytes.
	a := validAssistant()
	a.Description = strings.Repeat("ü", MaxDescriptionLen)
	if err := store.Create("alice", a); err != nil {
		t.Errorf("Create() error: %v", err)
	}
}

func TestEffectiveSystemPrompt(t *testing.T) {
	a := validAssistant()
	if got := a.EffectiveSystemPrompt(); got != a.SystemPrompt {
		t.Errorf("without KB: %q", got)
	}

	a.KnowledgeBase = "Widget spec v2"
	got := a.EffectiveSystemPrompt()
	if !strings.HasPrefix(got, a.SystemPrompt) {
		t.Errorf("prompt not preserved: %q", got)
	}
	if !strings.Contains(got, "Knowledge Base Context") || !strings.Contains(got, "Widget spec v2") {
		t.Errorf("knowledge base not appended: %q", got)
	}
}

func TestListActiveOnly(t *testing.T) {
	store := newTestStore(t)

	active := validAssistant()
	if err := store.Create("alice", active); err != nil {
		t.Fatal(err)
	}

	draft := validAssistant()
	draft.Name = "Draft Helper"
	draft.Status = StatusDraft
	if err := store.Create("alice", draft); err != nil {
		t.Fatal(err)
	}

	if got := store.List("alice", false); len(got) != 2 {
		t.Errorf("List(all) = %d, want 2", len(got))
	}
	got := store.List("alice", true)
	if len(got) != 1 || got[0].Status != StatusActive {
		t.Errorf("List(active) = %+v", got)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	store := newTestStore(t)

	a := validAssistant()
	if err := store.Create("alice", a); err != nil {
		t.Fatal(err)
	}

	a.Name = "Renamed Helper"
	a.Status = StatusDraft
	if err := store.Update("alice", a); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := store.Get("alice", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed Helper" || got.Status != StatusDraft {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.CreatedAt != a.CreatedAt {
		t.Error("CreatedAt changed on update")
	}

	if err := store.Delete("alice", a.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get("alice", a.ID); err != ErrNotFound {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("alice", a.ID); err != ErrNotFound {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestExportImport(t *testing.T) {
	store := newTestStore(t)

	a := validAssistant()
	if err := store.Create("alice", a); err != nil {
		t.Fatal(err)
	}

	data, err := store.Export("alice")
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	added, err := store.Import("bob", data)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if added != 1 {
		t.Errorf("imported = %d, want 1", added)
	}

	got := store.List("bob", false)
	if len(got) != 1 {
		t.Fatalf("bob has %d assistants, want 1", len(got))
	}
	if got[0].ID == a.ID {
		t.Error("import reused the exported id")
	}
	if got[0].Name != a.Name {
		t.Errorf("Name = %q", got[0].Name)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Import("alice", []byte("not json")); err == nil {
		t.Error("Import() accepted garbage")
	}
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "alice_assistants.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := store.List("alice", false); len(got) != 0 {
		t.Errorf("List() on corrupt file = %d entries", len(got))
	}
}

func TestTemplates(t *testing.T) {
	templates := Templates()
	if len(templates) != 8 {
		t.Fatalf("got %d templates, want 8", len(templates))
	}
	seen := map[string]bool{}
	for _, tmpl := range templates {
		if tmpl.Name == "" || tmpl.Prompt == "" {
			t.Errorf("incomplete template: %+v", tmpl)
		}
		if seen[tmpl.Name] {
			t.Errorf("duplicate template name %q", tmpl.Name)
		}
		seen[tmpl.Name] = true
	}
	if !seen["Helpful Assistant"] || !seen["Code Reviewer"] {
		t.Error("expected built-in templates missing")
	}
}

func TestExtractKnowledgePlainText(t *testing.T) {
	text, err := ExtractKnowledge("notes.txt", []byte("  line one\nline two  "))
	if err != nil {
		t.Fatalf("ExtractKnowledge() error: %v", err)
	}
	if text != "line one\nline two" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractKnowledgeTruncates(t *testing.T) {
	text, err := ExtractKnowledge("big.txt", []byte(strings.Repeat("a", MaxKnowledgeLen*2)))
	if err != nil {
		t.Fatal(err)
	}
	if len(text) != MaxKnowledgeLen {
		t.Errorf("length = %d, want %d", len(text), MaxKnowledgeLen)
	}
}

func TestExtractKnowledgeTruncatesOnRuneBoundary(t *testing.T) {
	data := []byte(strings.Repeat("a", MaxKnowledgeLen-1) + "日本")
	text, err := ExtractKnowledge("big.txt", data)
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(text) {
		t.Error("truncated text is not valid UTF-8")
	}
	if len(text) != MaxKnowledgeLen-1 {
		t.Errorf("length = %d, want %d", len(text), MaxKnowledgeLen-1)
	}
}

func TestExtractKnowledgeRejectsBinary(t *testing.T) {
	if _, err := ExtractKnowledge("data.bin", []byte{0xff, 0xfe, 0x00, 0x81}); err == nil {
		t.Error("ExtractKnowledge() accepted invalid UTF-8")
	}
}
