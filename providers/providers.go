// Package providers registers the backend adapters shipped with insight.
package providers

import (
	"github.com/veranima/insight"
	"github.com/veranima/insight/providers/anthropic"
	"github.com/veranima/insight/providers/openai"
)

// Registry returns the factories for every supported variant.
func Registry() insight.Factories {
	return insight.Factories{
		insight.VariantOpenAI: func(creds insight.Credentials) (insight.Provider, error) {
			return openai.New(openai.Config{
				APIKey:    creds.APIKey,
				Model:     creds.Model,
				BaseURL:   creds.BaseURL,
				MaxTokens: creds.MaxTokens,
				Timeout:   creds.Timeout,
			}), nil
		},
		insight.VariantClaude: func(creds insight.Credentials) (insight.Provider, error) {
			return anthropic.New(anthropic.Config{
				APIKey:    creds.APIKey,
				Model:     creds.Model,
				BaseURL:   creds.BaseURL,
				MaxTokens: creds.MaxTokens,
				Timeout:   creds.Timeout,
			}), nil
		},
	}
}
