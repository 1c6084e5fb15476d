// Package interpret turns free-form operator text into an ordered intent
// sequence using an LLM provider. The provider is opaque and fallible: its
// output is treated as untrusted until it parses as strict JSON, and every
// parsed intent still goes through plan validation downstream.
package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned when a provider is used before Init.
var ErrNotInitialized = errors.New("llm provider not initialized")

// Config selects and configures the LLM backend.
type Config struct {
	Backend    string // "gemini" or "ollama"
	Model      string
	OllamaHost string
}

// Provider generates strict-JSON completions from a prompt.
type Provider interface {
	// Name identifies the backend for logging and metrics.
	Name() string
	// GenerateJSON returns the model's completion, constrained to JSON.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds the configured backend.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "gemini":
		return newGeminiProvider(cfg)
	case "ollama":
		return newOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.Backend)
	}
}
