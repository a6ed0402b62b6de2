// Package assistants manages user-defined assistant profiles: a name,
// a system prompt, an optional knowledge base and lifecycle status.
// Profiles are stored as per-user JSON files under a data directory.
package assistants

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Assistant status values. Only active assistants are offered in chat.
const (
	StatusActive = "Active"
	StatusDraft  = "Draft"
)

// Field limits enforced on create and update.
const (
	MinNameLen         = 2
	MaxDescriptionLen  = 200
	MaxSystemPromptLen = 2000
	MaxKnowledgeLen    = 5000
)

var (
	// ErrNotFound indicates the assistant id does not exist.
	ErrNotFound = errors.New("assistant not found")
	// ErrInvalid indicates the assistant failed validation.
	ErrInvalid = errors.New("invalid assistant")
)

// Assistant is a user-defined chat persona.
type Assistant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	SystemPrompt  string `json:"system_prompt"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// EffectiveSystemPrompt returns the system prompt with the knowledge base
// appended as context, matching what the chat layer sends to backends.
func (a *Assistant) EffectiveSystemPrompt() string {
	if a.KnowledgeBase == "" {
		return a.SystemPrompt
	}
	return a.SystemPrompt + "\n\n**Knowledge Base Context:**\n" + a.KnowledgeBase
}

// Validate checks field constraints and normalizes whitespace.
func (a *Assistant) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	a.Description = strings.TrimSpace(a.Description)
	a.SystemPrompt = strings.TrimSpace(a.SystemPrompt)

	if utf8.RuneCountInString(a.Name) < MinNameLen {
		return fmt.Errorf("%w: name must be at least %d characters", ErrInvalid, MinNameLen)
	}
	if a.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	if utf8.RuneCountInString(a.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalid, MaxDescriptionLen)
	}
	if a.SystemPrompt == "" {
		return fmt.Errorf("%w: system prompt is required", ErrInvalid)
	}
	if utf8.RuneCountInString(a.SystemPrompt) > MaxSystemPromptLen {
		return fmt.Errorf("%w: system prompt exceeds %d characters", ErrInvalid, MaxSystemPromptLen)
	}
	if a.Status != StatusActive && a.Status != StatusDraft {
		return fmt.Errorf("%w: status must be %s or %s", ErrInvalid, StatusActive, StatusDraft)
	}
	a.KnowledgeBase = truncateKnowledge(a.KnowledgeBase)
	return nil
}

// Store persists assistants as JSON files, one file per user.
type Store struct {
	mu      sync.Mutex
	dataDir string
}

// NewStore creates a store rooted at dataDir, creating it if needed.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// filePath returns the JSON file for a user. An empty username maps to
// the shared default file.
func (s *Store) filePath(username string) string {
	name := "assistants.json"
	if username != "" {
		name = strings.ToLower(username) + "_assistants.json"
	}
	return filepath.Join(s.dataDir, name)
}

// load reads the user's assistant list. A missing or corrupt file yields
// an empty list, matching how the UI treats first use.
func (s *Store) load(username string) []Assistant {
	data, err := os.ReadFile(s.filePath(username))
	if err != nil {
		return []Assistant{}
	}
	var list []Assistant
	if err := json.Unmarshal(data, &list); err != nil {
		return []Assistant{}
	}
	return list
}

// save writes the user's assistant list atomically.
func (s *Store) save(username string, list []Assistant) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath(username)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// List returns all assistants for a user, or only active ones when
// activeOnly is set.
func (s *Store) List(username string, activeOnly bool) []Assistant {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(username)
	if !activeOnly {
		return list
	}

	active := make([]Assistant, 0, len(list))
	for _, a := range list {
		if a.Status == StatusActive {
			active = append(active, a)
		}
	}
	return active
}

// Get returns a single assistant by id.
func (s *Store) Get(username, id string) (*Assistant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.load(username) {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

// Create validates and persists a new assistant, assigning id and
// timestamps.
func (s *Store) Create(username string, a *Assistant) error {
	if a.Status == "" {
		a.Status = StatusActive
	}
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now

	list := append(s.load(username), *a)
	return s.save(username, list)
}

// Update replaces the stored fields of an existing assistant.
func (s *Store) Update(username string, a *Assistant) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(username)
	for i := range list {
		if list[i].ID == a.ID {
			a.CreatedAt = list[i].CreatedAt
			a.UpdatedAt = time.Now().Format(time.RFC3339)
			list[i] = *a
			return s.save(username, list)
		}
	}
	return ErrNotFound
}

// Delete removes an assistant by id.
func (s *Store) Delete(username, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(username)
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i], list[i+1:]...)
			return s.save(username, list)
		}
	}
	return ErrNotFound
}

// Export returns the user's assistants as indented JSON for download.
func (s *Store) Export(username string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return json.MarshalIndent(s.load(username), "", "  ")
}

// Import merges assistants from an exported JSON document. Imported
// entries get fresh ids so repeated imports never collide. It returns
// the number of assistants added.
func (s *Store) Import(username string, data []byte) (int, error) {
	var incoming []Assistant
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(username)
	now := time.Now().Format(time.RFC3339)
	added := 0
	for _, a := range incoming {
		if a.Status == "" {
			a.Status = StatusActive
		}
		if err := a.Validate(); err != nil {
			continue
		}
		a.ID = uuid.NewString()
		if a.CreatedAt == "" {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		list = append(list, a)
		added++
	}

	if added > 0 {
		if err := s.save(username, list); err != nil {
			return 0, err
		}
	}
	return added, nil
}
