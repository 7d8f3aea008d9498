package insight

import (
	"time"

	"github.com/zoobzio/pipz"
)

// Option modifies the buffered pipeline for reliability features.
// Nothing is enabled by default: the provider contract implies no retry.
type Option func(pipz.Chainable[*Call]) pipz.Chainable[*Call]

// WithRetry retries failed buffered calls up to maxAttempts times.
func WithRetry(maxAttempts int) Option {
	return func(pipeline pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewRetry(pipz.NewIdentity("retry", "Retries failed insight calls"), pipeline, maxAttempts)
	}
}

// WithBackoff retries failed buffered calls with exponential backoff.
// The delay starts at baseDelay and doubles after each failure.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(pipeline pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewBackoff(pipz.NewIdentity("backoff", "Retries failed insight calls with exponential delay"), pipeline, maxAttempts, baseDelay)
	}
}

// WithTimeout cancels buffered calls that exceed duration.
func WithTimeout(duration time.Duration) Option {
	return func(pipeline pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewTimeout(pipz.NewIdentity("timeout", "Bounds the duration of an insight call"), pipeline, duration)
	}
}

// WithCircuitBreaker opens the circuit after 'failures' consecutive
// failures and keeps it open for 'recovery'.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewCircuitBreaker(pipz.NewIdentity("circuit-breaker", "Stops calling a failing backend"), pipeline, failures, recovery)
	}
}

// WithRateLimit limits buffered calls to rps requests per second
// with the given burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*Call]) pipz.Chainable[*Call] {
		return pipz.NewRateLimiter(pipz.NewIdentity("rate-limit", "Limits the rate of insight calls"), rps, burst, pipeline)
	}
}
