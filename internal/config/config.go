// Package config loads insightd settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/veranima/insight"
)

// Config is the full process configuration.
type Config struct {
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	Provider string `env:"AI_PROVIDER,default=openai"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL,default=gpt-5-nano"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	ClaudeAPIKey  string `env:"CLAUDE_API_KEY"`
	ClaudeModel   string `env:"CLAUDE_MODEL,default=claude-3-5-haiku-20241022"`
	ClaudeBaseURL string `env:"CLAUDE_BASE_URL"`

	MaxTokens      int           `env:"AI_MAX_TOKENS,default=300"`
	HTTPTimeout    time.Duration `env:"AI_HTTP_TIMEOUT,default=60s"`
	RequestTimeout time.Duration `env:"AI_REQUEST_TIMEOUT,default=0s"`
	Retries        int           `env:"AI_RETRIES,default=0"`

	RateLimit float64 `env:"HTTP_RATE_LIMIT,default=0"` // Requests per second per client, 0 disables
	RateBurst int     `env:"HTTP_RATE_BURST,default=5"`

	StreamTimeout time.Duration `env:"HTTP_STREAM_TIMEOUT,default=0s"` // Upper bound per stream, 0 disables
}

// Load reads environment variables, optionally from a .env file if present.
func Load() (Config, error) {
	// Try to load .env if it exists; ignore error if file not found
	_ = godotenv.Load()

	// Strict: a malformed number or duration fails instead of decoding to zero
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// KnownProvider reports whether AI_PROVIDER names a supported variant.
// Unknown values still load; they bind the default variant.
func (c Config) KnownProvider() bool {
	_, ok := insight.ParseVariant(c.Provider)
	return ok
}

// Insight maps the settings to the service configuration.
// The token limit applies to the claude variant only; reasoning models on
// the openai variant spend part of the budget before emitting text.
func (c Config) Insight() insight.Config {
	return insight.Config{
		Provider: c.Provider,
		OpenAI: insight.Credentials{
			APIKey:  c.OpenAIAPIKey,
			Model:   c.OpenAIModel,
			BaseURL: c.OpenAIBaseURL,
			Timeout: c.HTTPTimeout,
		},
		Claude: insight.Credentials{
			APIKey:    c.ClaudeAPIKey,
			Model:     c.ClaudeModel,
			BaseURL:   c.ClaudeBaseURL,
			MaxTokens: c.MaxTokens,
			Timeout:   c.HTTPTimeout,
		},
	}
}

// Options maps the reliability settings to service options.
// Zero values leave the buffered pipeline bare.
func (c Config) Options() []insight.Option {
	var opts []insight.Option
	if c.Retries > 0 {
		opts = append(opts, insight.WithRetry(c.Retries+1))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, insight.WithTimeout(c.RequestTimeout))
	}
	return opts
}
