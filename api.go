// Package insight generates short reflective insights for journal entries.
//
// A Service binds exactly one Provider, chosen once from Config, and exposes
// two entry points built on the same prompt: GetInsight returns the complete
// reply, StreamInsight delivers it as an ordered sequence of fragments.
//
// The prompt is parameterised by the writer's current stage of the four-stage
// alchemical scale (Nigredo, Albedo, Citrinitas, Rubedo); the journal text is
// always passed through to the backend verbatim.
//
// Basic usage:
//
//	svc, err := insight.New(cfg, providers.Registry())
//	if err != nil {
//		return err
//	}
//	text, err := svc.GetInsight(ctx, "Dziś poczułem spokój", "Albedo")
//
// Streaming:
//
//	chunks, err := svc.StreamInsight(ctx, entry, stage)
//	for chunk := range chunks {
//		if chunk.Err != nil {
//			return chunk.Err
//		}
//		fmt.Print(chunk.Text)
//	}
//
// All calls emit capitan signals (see hooks.go) for logging and metrics.
package insight

import "context"

// Provider is a backend-specific adapter that turns a Prompt into text.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Generate performs one buffered completion and returns its text.
	// Degenerate backend output yields "" without error; backend or network
	// failures return a *ProviderError.
	Generate(ctx context.Context, prompt Prompt) (string, error)

	// Stream opens an incremental completion. Fragments arrive in backend
	// order and the channel is closed exactly once. A failure after the
	// stream opened is delivered as a final Chunk with Err set.
	// Cancelling ctx stops delivery and releases the backend connection.
	Stream(ctx context.Context, prompt Prompt) (<-chan Chunk, error)

	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
}

// Chunk is one fragment of a streamed insight.
// Fragment size is backend-defined; callers must not assume a granularity.
type Chunk struct {
	Text string // Fragment text
	Err  error  // Set only on the final chunk of an abnormally closed stream
}

// Role constants for chat messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)
