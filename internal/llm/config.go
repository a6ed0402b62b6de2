package llm

import (
	"fmt"
	"os"
	"time"
)

const (
	defaultOllamaTimeout = 120 * time.Second
	defaultHostedTimeout = 60 * time.Second

	defaultOllamaURL  = "http://localhost:11434"
	defaultClaudeURL  = "https://api.anthropic.com"
	defaultChatGPTURL = "https://api.openai.com"
	defaultGrokURL    = "https://api.x.ai"

	defaultOllamaModel  = "llama3"
	defaultClaudeModel  = "claude-3-5-sonnet-20241022"
	defaultChatGPTModel = "gpt-4o-mini"
	defaultGrokModel    = "grok-beta"
)

// BackendConfig holds configuration for a single backend. For hosted kinds
// the APIKey is the caller's session credential, passed by value per call;
// it is excluded from JSON serialization and never logged or persisted.
type BackendConfig struct {
	Type     BackendType   `json:"type"`
	Name     string        `json:"name"`
	Enabled  bool          `json:"enabled"`
	Primary  bool          `json:"primary"`
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`
	APIKey   string        `json:"-"`
	Timeout  time.Duration `json:"timeout"`
}

// Validate checks the configuration and sets per-kind defaults. Hosted
// kinds without an API key fail with ErrMissingCredential.
func (c *BackendConfig) Validate() error {
	switch c.Type {
	case BackendOllama:
		if c.Endpoint == "" {
			c.Endpoint = defaultOllamaURL
		}
		if c.Model == "" {
			c.Model = defaultOllamaModel
		}
		if c.Timeout == 0 {
			c.Timeout = defaultOllamaTimeout
		}

	case BackendClaude:
		if c.Endpoint == "" {
			c.Endpoint = defaultClaudeURL
		}
		if c.Model == "" {
			c.Model = defaultClaudeModel
		}

	case BackendChatGPT:
		if c.Endpoint == "" {
			c.Endpoint = defaultChatGPTURL
		}
		if c.Model == "" {
			c.Model = defaultChatGPTModel
		}

	case BackendGrok:
		if c.Endpoint == "" {
			c.Endpoint = defaultGrokURL
		}
		if c.Model == "" {
			c.Model = defaultGrokModel
		}

	default:
		return fmt.Errorf("unknown backend type: %s", c.Type)
	}

	if c.Type.Hosted() {
		if c.APIKey == "" {
			return NewBackendError(c.Type, "Validate", ErrMissingCredential)
		}
		if c.Timeout == 0 {
			c.Timeout = defaultHostedTimeout
		}
	}

	if c.Name == "" {
		c.Name = string(c.Type)
	}

	return nil
}

// Config holds the set of backends registered at startup. Hosted backends
// are not listed here: they are constructed per request from the caller's
// session credential.
type Config struct {
	Backends       []BackendConfig `json:"backends"`
	DefaultBackend string          `json:"default_backend"`
}

// Validate checks all backend configurations.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	names := make(map[string]bool)
	hasPrimary := false

	for i := range c.Backends {
		if err := c.Backends[i].Validate(); err != nil {
			return fmt.Errorf("backend %q: %w", c.Backends[i].Name, err)
		}

		if names[c.Backends[i].Name] {
			return fmt.Errorf("duplicate backend name: %s", c.Backends[i].Name)
		}
		names[c.Backends[i].Name] = true

		if c.Backends[i].Primary {
			if hasPrimary {
				return fmt.Errorf("multiple backends marked as primary")
			}
			hasPrimary = true
		}
	}

	if c.DefaultBackend != "" && !names[c.DefaultBackend] {
		return fmt.Errorf("default backend %q not found in backends list", c.DefaultBackend)
	}

	return nil
}

// LoadFromEnv creates a Config from environment variables. Only the local
// Ollama backend is registered at startup; hosted backends come and go with
// the session credentials the UI supplies per request.
func LoadFromEnv() *Config {
	ollamaURL := getEnvOrDefault("OLLAMA_URL", defaultOllamaURL)
	defaultModel := getEnvOrDefault("DEFAULT_MODEL", defaultOllamaModel)

	return &Config{
		Backends: []BackendConfig{
			{
				Type:     BackendOllama,
				Name:     "ollama",
				Enabled:  true,
				Primary:  true,
				Endpoint: ollamaURL,
				Model:    defaultModel,
				Timeout:  defaultOllamaTimeout,
			},
		},
		DefaultBackend: "ollama",
	}
}

// DefaultModel returns the default model name for a backend kind.
func DefaultModel(t BackendType) string {
	switch t {
	case BackendClaude:
		return defaultClaudeModel
	case BackendChatGPT:
		return defaultChatGPTModel
	case BackendGrok:
		return defaultGrokModel
	default:
		return defaultOllamaModel
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
