package insight

import (
	"strings"
	"time"
)

// Variant selects which backend adapter a Service binds.
type Variant string

// Recognized variants.
const (
	VariantOpenAI Variant = "openai" // chat-completion backend
	VariantClaude Variant = "claude" // message-completion backend
)

// DefaultVariant is bound when no recognized variant is configured.
const DefaultVariant = VariantOpenAI

// ParseVariant maps a configuration value to a Variant.
// Empty or unknown values yield DefaultVariant and false.
func ParseVariant(value string) (Variant, bool) {
	switch Variant(strings.ToLower(strings.TrimSpace(value))) {
	case VariantOpenAI:
		return VariantOpenAI, true
	case VariantClaude:
		return VariantClaude, true
	default:
		return DefaultVariant, false
	}
}

// Credentials holds the per-variant backend settings.
type Credentials struct {
	APIKey    string
	Model     string        // Optional, adapter default when empty
	BaseURL   string        // Optional, adapter default when empty
	MaxTokens int           // Optional, adapter default when 0
	Timeout   time.Duration // Optional HTTP client timeout
}

// Config enumerates everything a Service needs to pick its provider.
type Config struct {
	Provider string // "openai" or "claude"; anything else binds openai
	OpenAI   Credentials
	Claude   Credentials
}

// Active returns the variant to bind and its credentials.
func (c Config) Active() (Variant, Credentials) {
	variant, _ := ParseVariant(c.Provider)
	if variant == VariantClaude {
		return variant, c.Claude
	}
	return variant, c.OpenAI
}

// Validate checks that the active variant has a credential.
// Credentials of the inactive variant are not required.
func (c Config) Validate() error {
	variant, creds := c.Active()
	if strings.TrimSpace(creds.APIKey) == "" {
		return &ConfigurationError{Variant: variant, Reason: "api key is not set"}
	}
	return nil
}

// Factory builds a Provider for one variant.
type Factory func(Credentials) (Provider, error)

// Factories maps each variant to the constructor of its adapter.
type Factories map[Variant]Factory
