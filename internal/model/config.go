package model

import "time"

// Config holds the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Explain ExplainConfig `yaml:"explain" mapstructure:"explain"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`

	// ReadHeaderTimeout bounds header parsing; the response itself is a
	// long-lived stream and carries no write deadline.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout"`

	// RateRPS/RateBurst apply per authenticated caller
	RateRPS   float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// StoreConfig configures the analysis result store
type StoreConfig struct {
	// Path to the SQLite database file
	Path string `yaml:"path" mapstructure:"path"`
}

// AuthConfig configures caller verification
type AuthConfig struct {
	// Mode: "remote" (verify tokens against Endpoint) or "static" (Tokens map)
	Mode     string            `yaml:"mode" mapstructure:"mode"`
	Endpoint string            `yaml:"endpoint" mapstructure:"endpoint"`
	Tokens   map[string]string `yaml:"tokens,omitempty" mapstructure:"tokens"`

	// CacheTTL bounds how long a verified token is remembered
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// LLMConfig configures the generation engine
type LLMConfig struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey for OpenAI/Anthropic
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout for API requests
	Timeout int `yaml:"timeout" mapstructure:"timeout"` // seconds

	// MaxTokens for response generation
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExplainConfig fixes the explanation output contract per deployment
type ExplainConfig struct {
	// Language of generated explanations (deployment-fixed)
	Language string `yaml:"language" mapstructure:"language"`

	// Audience register: "general" or "novice". Calibrates tone only -
	// safety constraints are identical for both.
	Audience string `yaml:"audience" mapstructure:"audience"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			RateRPS:           5,
			RateBurst:         10,
		},
		Store: StoreConfig{
			Path: "explaind.db",
		},
		Auth: AuthConfig{
			Mode:     "static",
			CacheTTL: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "",
			Timeout:   60,
			MaxTokens: 1000,
		},
		Explain: ExplainConfig{
			Language: "Korean",
			Audience: "general",
		},
	}
}
