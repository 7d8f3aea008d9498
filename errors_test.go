package insight

import (
	"context"
	"errors"
	"testing"
)

func TestProviderErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "status and message",
			err:  &ProviderError{Provider: "openai", StatusCode: 429, Message: "Rate limit exceeded"},
			want: "openai error (429): Rate limit exceeded",
		},
		{
			name: "status only",
			err:  &ProviderError{Provider: "anthropic", StatusCode: 500},
			want: "anthropic error: status 500",
		},
		{
			name: "transport",
			err:  &ProviderError{Provider: "openai", Err: errors.New("dial tcp: refused")},
			want: "openai request failed: dial tcp: refused",
		},
		{
			name: "message only",
			err:  &ProviderError{Provider: "mock", Message: "down"},
			want: "mock error: down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		err := error(&ValidationError{Field: "journalEntry", Reason: "must not be empty"})
		if !errors.Is(err, ErrValidation) || errors.Is(err, ErrProviderCallFailed) {
			t.Errorf("Unexpected classification of %v", err)
		}
		if err.Error() != "journalEntry must not be empty" {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})

	t.Run("configuration", func(t *testing.T) {
		err := error(&ConfigurationError{Variant: VariantClaude, Reason: "api key is not set"})
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("Expected ErrConfiguration, got %v", err)
		}
		if err.Error() != "provider claude: api key is not set" {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})

	t.Run("provider with cause", func(t *testing.T) {
		err := error(&ProviderError{Provider: "openai", Err: context.DeadlineExceeded})
		if !errors.Is(err, ErrProviderCallFailed) {
			t.Error("Expected ErrProviderCallFailed")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("Expected cause to unwrap")
		}
	})
}

func TestAsProviderError(t *testing.T) {
	t.Run("keeps provider errors", func(t *testing.T) {
		original := &ProviderError{Provider: "openai", StatusCode: 401}
		if got := asProviderError("other", original); got != original {
			t.Error("Expected the original error to be returned")
		}
	})

	t.Run("finds wrapped provider errors", func(t *testing.T) {
		original := &ProviderError{Provider: "openai", StatusCode: 401}
		wrapped := errors.Join(errors.New("pipeline"), original)
		if got := asProviderError("other", wrapped); got != original {
			t.Error("Expected the wrapped error to be found")
		}
	})

	t.Run("wraps foreign errors", func(t *testing.T) {
		got := asProviderError("openai", context.Canceled)
		if got.Provider != "openai" || !errors.Is(got, context.Canceled) {
			t.Errorf("Unexpected wrapper %+v", got)
		}
	})
}
