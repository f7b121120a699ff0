package llm

import (
	"context"

	"github.com/smishguard/explaind/internal/prompt"
)

// Provider defines the interface for generation engine backends.
//
// The engine is treated as untrusted for factual content but trusted to
// respect the system instruction it is given; no output validation is
// performed on the text it returns before relaying it to the caller.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Stream generates an explanation for the prompt, invoking onDelta for
	// each text fragment as it arrives. Fragments are non-empty and
	// order-preserving; the sequence may be empty. An onDelta error aborts
	// the stream and is returned unchanged.
	Stream(ctx context.Context, req StreamRequest, onDelta func(text string) error) error

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// StreamRequest contains the input for one generation call
type StreamRequest struct {
	// Prompt is the structured prompt built by the prompt package
	Prompt prompt.Prompt

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// Config holds generation engine configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Model:     "",
		Timeout:   60,
		MaxTokens: 1000,
	}
}

func (c Config) maxTokens(req StreamRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}
