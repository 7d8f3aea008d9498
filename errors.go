package insight

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrValidation marks input rejected before any backend call.
	ErrValidation = errors.New("invalid insight request")

	// ErrConfiguration marks a provider that cannot be constructed.
	ErrConfiguration = errors.New("insight provider misconfigured")

	// ErrProviderCallFailed marks a backend call that failed or was rejected.
	ErrProviderCallFailed = errors.New("provider call failed")
)

// ValidationError reports a missing or empty input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConfigurationError reports a provider variant that lacks a credential
// or cannot be built.
type ConfigurationError struct {
	Variant Variant
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Variant, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// ProviderError carries the backend's failure detail.
// StatusCode is 0 when the request never got an HTTP response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       string // Backend error type, when reported
	Message    string
	Err        error // Underlying transport error, if any
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s error (%d): %s", e.Provider, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error: status %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProviderCallFailed, e.Err}
	}
	return []error{ErrProviderCallFailed}
}

// asProviderError returns err as a *ProviderError, wrapping foreign errors
// (timeouts, open circuit breakers) so callers always see ErrProviderCallFailed.
func asProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Err: err}
}
