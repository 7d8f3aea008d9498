package insight

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Service generates insights through a single provider bound at construction.
// The binding is read-only afterwards, so a Service is safe for concurrent use.
type Service struct {
	provider Provider
	buffered pipz.Chainable[*Call]
	stream   pipz.Chainable[*Call]
}

// New validates cfg, selects the configured variant and builds its provider
// through factories. A missing credential or an unbuildable provider returns
// a *ConfigurationError before any backend call can happen.
func New(cfg Config, factories Factories, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	variant, creds := cfg.Active()
	factory, ok := factories[variant]
	if !ok || factory == nil {
		return nil, &ConfigurationError{Variant: variant, Reason: "no provider registered"}
	}

	provider, err := factory(creds)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &ConfigurationError{Variant: variant, Reason: err.Error()}
	}
	if provider == nil {
		return nil, &ConfigurationError{Variant: variant, Reason: "factory returned no provider"}
	}

	return NewService(provider, opts...), nil
}

// NewService binds provider directly. Options apply to buffered calls only;
// wrapping the stream open in a timeout would cancel the stream it returns.
func NewService(provider Provider, opts ...Option) *Service {
	buffered := newTerminal(provider)
	for _, opt := range opts {
		buffered = opt(buffered)
	}

	return &Service{
		provider: provider,
		buffered: buffered,
		stream:   newTerminal(provider),
	}
}

// newTerminal creates the processor that hands the composed prompt to the provider.
func newTerminal(provider Provider) pipz.Chainable[*Call] {
	return pipz.Apply(pipz.NewIdentity("provider-call", "Hands the composed prompt to the provider"), func(ctx context.Context, call *Call) (*Call, error) {
		if err := call.Prompt.Validate(); err != nil {
			return call, err
		}
		if call.Stream {
			chunks, err := provider.Stream(ctx, call.Prompt)
			if err != nil {
				return call, err
			}
			call.Chunks = chunks
			return call, nil
		}

		text, err := provider.Generate(ctx, call.Prompt)
		if err != nil {
			return call, err
		}
		call.Response = text
		return call, nil
	})
}

// Provider returns the name of the bound provider.
func (s *Service) Provider() string {
	return s.provider.Name()
}

// GetInsight returns the complete insight for journalText at stageLabel.
//
// Empty input is rejected with a *ValidationError before any backend call.
// Backend failures are returned as *ProviderError; no fallback text is ever
// substituted. An empty string without error means the backend produced no
// extractable text (see ResponseMalformed).
func (s *Service) GetInsight(ctx context.Context, journalText, stageLabel string) (string, error) {
	if err := (Request{JournalEntry: journalText, CurrentStage: stageLabel}).Validate(); err != nil {
		return "", err
	}

	call := s.newCall(journalText, stageLabel, false)
	startTime := time.Now()

	capitan.Info(ctx, RequestStarted,
		RequestIDKey.Field(call.RequestID),
		ModeKey.Field(ModeBuffered),
		ProviderKey.Field(call.ProviderName),
		StageKey.Field(string(call.Stage)),
		InputLengthKey.Field(len(journalText)),
	)

	processed, err := s.buffered.Process(ctx, call)
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return "", validationErr
	}
	if err != nil {
		providerErr := asProviderError(call.ProviderName, err)
		capitan.Error(ctx, RequestFailed,
			RequestIDKey.Field(call.RequestID),
			ModeKey.Field(ModeBuffered),
			ProviderKey.Field(call.ProviderName),
			StageKey.Field(string(call.Stage)),
			HTTPStatusCodeKey.Field(providerErr.StatusCode),
			DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
			ErrorKey.Field(providerErr.Error()),
		)
		return "", providerErr
	}

	capitan.Info(ctx, RequestCompleted,
		RequestIDKey.Field(call.RequestID),
		ModeKey.Field(ModeBuffered),
		ProviderKey.Field(call.ProviderName),
		StageKey.Field(string(call.Stage)),
		OutputLengthKey.Field(len(processed.Response)),
		DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
	)

	return processed.Response, nil
}

// StreamInsight opens a streamed insight for journalText at stageLabel.
//
// Validation and stream-open failures are returned directly. Once open, the
// returned channel delivers the provider's fragments unchanged and in order,
// then closes; a failure mid-stream arrives as a final Chunk whose Err wraps
// ErrProviderCallFailed. Cancel ctx to abandon the stream early.
func (s *Service) StreamInsight(ctx context.Context, journalText, stageLabel string) (<-chan Chunk, error) {
	if err := (Request{JournalEntry: journalText, CurrentStage: stageLabel}).Validate(); err != nil {
		return nil, err
	}

	call := s.newCall(journalText, stageLabel, true)
	startTime := time.Now()

	capitan.Info(ctx, StreamStarted,
		RequestIDKey.Field(call.RequestID),
		ModeKey.Field(ModeStreamed),
		ProviderKey.Field(call.ProviderName),
		StageKey.Field(string(call.Stage)),
		InputLengthKey.Field(len(journalText)),
	)

	processed, err := s.stream.Process(ctx, call)
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return nil, validationErr
	}
	if err != nil {
		providerErr := asProviderError(call.ProviderName, err)
		s.streamFailed(ctx, call, startTime, 0, providerErr)
		return nil, providerErr
	}

	return s.relay(ctx, call, processed.Chunks, startTime), nil
}

// relay forwards fragments to the caller and reports how the stream ended.
func (s *Service) relay(ctx context.Context, call *Call, src <-chan Chunk, startTime time.Time) <-chan Chunk {
	out := make(chan Chunk, 1)

	go func() {
		defer close(out)

		fragments, length := 0, 0
		for chunk := range src {
			if chunk.Err != nil {
				providerErr := asProviderError(call.ProviderName, chunk.Err)
				select {
				case out <- Chunk{Err: providerErr}:
				case <-ctx.Done():
				}
				s.streamFailed(ctx, call, startTime, fragments, providerErr)
				return
			}

			select {
			case out <- chunk:
				fragments++
				length += len(chunk.Text)
			case <-ctx.Done():
				providerErr := asProviderError(call.ProviderName, ctx.Err())
				select {
				case out <- Chunk{Err: providerErr}:
				default:
				}
				s.streamFailed(ctx, call, startTime, fragments, providerErr)
				return
			}
		}

		capitan.Info(ctx, StreamCompleted,
			RequestIDKey.Field(call.RequestID),
			ModeKey.Field(ModeStreamed),
			ProviderKey.Field(call.ProviderName),
			StageKey.Field(string(call.Stage)),
			FragmentCountKey.Field(fragments),
			OutputLengthKey.Field(length),
			DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		)
	}()

	return out
}

func (*Service) streamFailed(ctx context.Context, call *Call, startTime time.Time, fragments int, err *ProviderError) {
	capitan.Error(ctx, StreamFailed,
		RequestIDKey.Field(call.RequestID),
		ModeKey.Field(ModeStreamed),
		ProviderKey.Field(call.ProviderName),
		StageKey.Field(string(call.Stage)),
		FragmentCountKey.Field(fragments),
		HTTPStatusCodeKey.Field(err.StatusCode),
		DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		ErrorKey.Field(err.Error()),
	)
}

func (s *Service) newCall(journalText, stageLabel string, stream bool) *Call {
	stage, _ := ParseStage(stageLabel)
	return &Call{
		Prompt:       Compose(journalText, stageLabel),
		Stream:       stream,
		RequestID:    uuid.New().String(),
		Stage:        stage,
		ProviderName: s.provider.Name(),
	}
}
