package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// collect drains a stream, failing the test if it does not close in time.
func collect(t *testing.T, chunks <-chan Chunk) ([]string, error) {
	t.Helper()

	var texts []string
	var streamErr error
	timeout := time.After(2 * time.Second)

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return texts, streamErr
			}
			if chunk.Err != nil {
				if streamErr != nil {
					t.Error("Stream delivered more than one error")
				}
				streamErr = chunk.Err
				continue
			}
			if streamErr != nil {
				t.Error("Stream delivered a fragment after its error")
			}
			texts = append(texts, chunk.Text)
		case <-timeout:
			t.Fatal("Timeout waiting for stream to close")
		}
	}
}

func TestGetInsight(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		provider := NewMockProvider()
		svc := NewService(provider)

		text, err := svc.GetInsight(context.Background(), "Dziś poczułem spokój", "Albedo")
		if err != nil {
			t.Fatalf("GetInsight failed: %v", err)
		}
		if text != "INSIGHT:Dziś poczułem spokój" {
			t.Errorf("Expected echoed insight, got %q", text)
		}
		if provider.GenerateCalls() != 1 {
			t.Errorf("Expected 1 generate call, got %d", provider.GenerateCalls())
		}
	})

	t.Run("prompt reaches provider", func(t *testing.T) {
		provider := NewMockProvider()
		svc := NewService(provider)

		entry := "  Mój dzień\nbył długi.  "
		if _, err := svc.GetInsight(context.Background(), entry, "citrinitas"); err != nil {
			t.Fatalf("GetInsight failed: %v", err)
		}

		got := provider.LastPrompt()
		want := Compose(entry, "citrinitas")
		if got != want {
			t.Error("Provider did not receive the composed prompt")
		}
		if got.User != entry {
			t.Errorf("Journal text altered: %q", got.User)
		}
	})

	t.Run("validation before call", func(t *testing.T) {
		tests := []struct {
			name  string
			entry string
			stage string
			field string
		}{
			{"empty entry", "", "Albedo", "journalEntry"},
			{"whitespace entry", "  \n\t ", "Albedo", "journalEntry"},
			{"empty stage", "tekst", "", "currentStage"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				provider := NewMockProvider()
				svc := NewService(provider)

				_, err := svc.GetInsight(context.Background(), tt.entry, tt.stage)
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Expected ErrValidation, got %v", err)
				}

				var validationErr *ValidationError
				if !errors.As(err, &validationErr) || validationErr.Field != tt.field {
					t.Errorf("Expected validation error on %s, got %v", tt.field, err)
				}
				if provider.Calls() != 0 {
					t.Errorf("Expected no provider calls, got %d", provider.Calls())
				}
			})
		}
	})

	t.Run("unknown stage still answers", func(t *testing.T) {
		provider := NewMockProvider()
		svc := NewService(provider)

		if _, err := svc.GetInsight(context.Background(), "tekst", "Viriditas"); err != nil {
			t.Fatalf("GetInsight failed: %v", err)
		}
		if provider.LastPrompt().System != Compose("tekst", "Nigredo").System {
			t.Error("Unknown stage should use the default stage instruction")
		}
	})

	t.Run("provider error has no fallback", func(t *testing.T) {
		provider := NewMockProviderWithError("upstream down")
		svc := NewService(provider)

		text, err := svc.GetInsight(context.Background(), "tekst", "Albedo")
		if !errors.Is(err, ErrProviderCallFailed) {
			t.Fatalf("Expected ErrProviderCallFailed, got %v", err)
		}
		if text != "" {
			t.Errorf("Expected no text on failure, got %q", text)
		}
		if !strings.Contains(err.Error(), "upstream down") {
			t.Errorf("Expected provider message in error, got %q", err.Error())
		}
	})

	t.Run("foreign error is wrapped", func(t *testing.T) {
		provider := NewMockProviderWithCallback(func(Prompt) (string, error) {
			return "", context.DeadlineExceeded
		})
		svc := NewService(provider)

		_, err := svc.GetInsight(context.Background(), "tekst", "Albedo")
		if !errors.Is(err, ErrProviderCallFailed) {
			t.Errorf("Expected ErrProviderCallFailed, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected cause to be preserved, got %v", err)
		}
	})

	t.Run("empty output is not an error", func(t *testing.T) {
		svc := NewService(NewMockProviderWithResponse(""))

		text, err := svc.GetInsight(context.Background(), "tekst", "Albedo")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if text != "" {
			t.Errorf("Expected empty text, got %q", text)
		}
	})

	t.Run("no retry by default", func(t *testing.T) {
		provider := NewMockProviderWithError("boom")
		svc := NewService(provider)

		_, _ = svc.GetInsight(context.Background(), "tekst", "Albedo")
		if provider.GenerateCalls() != 1 {
			t.Errorf("Expected exactly 1 call, got %d", provider.GenerateCalls())
		}
	})

	t.Run("concurrent", func(t *testing.T) {
		provider := NewMockProvider()
		svc := NewService(provider)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				text, err := svc.GetInsight(context.Background(), "tekst", "Rubedo")
				if err != nil || text != EchoPrefix+"tekst" {
					t.Errorf("Unexpected result %q, %v", text, err)
				}
			}()
		}
		wg.Wait()

		if provider.GenerateCalls() != 20 {
			t.Errorf("Expected 20 calls, got %d", provider.GenerateCalls())
		}
	})
}

func TestTerminalRejectsIncompletePrompt(t *testing.T) {
	tests := []struct {
		name  string
		call  *Call
		field string
	}{
		{"missing system", &Call{Prompt: Prompt{User: "tekst"}}, "system"},
		{"missing user", &Call{Prompt: Prompt{System: "instr"}}, "journalEntry"},
		{"missing system on stream", &Call{Prompt: Prompt{User: "tekst"}, Stream: true}, "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewMockProvider()

			_, err := newTerminal(provider).Process(context.Background(), tt.call)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || validationErr.Field != tt.field {
				t.Errorf("Expected validation error on %s, got %v", tt.field, err)
			}
			if provider.Calls() != 0 {
				t.Errorf("Expected no provider calls, got %d", provider.Calls())
			}
		})
	}
}

func TestStreamInsight(t *testing.T) {
	t.Run("fragment order", func(t *testing.T) {
		provider := NewMockProviderWithFragments("A", "B", "C")
		svc := NewService(provider)

		chunks, err := svc.StreamInsight(context.Background(), "tekst", "Albedo")
		if err != nil {
			t.Fatalf("StreamInsight failed: %v", err)
		}

		texts, streamErr := collect(t, chunks)
		if streamErr != nil {
			t.Fatalf("Unexpected stream error: %v", streamErr)
		}
		if strings.Join(texts, "|") != "A|B|C" {
			t.Errorf("Expected A|B|C, got %v", texts)
		}
		if provider.StreamCalls() != 1 || provider.GenerateCalls() != 0 {
			t.Errorf("Expected a single stream call, got %d stream / %d generate",
				provider.StreamCalls(), provider.GenerateCalls())
		}
	})

	t.Run("concatenation matches echo", func(t *testing.T) {
		svc := NewService(NewMockProvider())

		chunks, err := svc.StreamInsight(context.Background(), "Dziś poczułem spokój", "Albedo")
		if err != nil {
			t.Fatalf("StreamInsight failed: %v", err)
		}

		texts, streamErr := collect(t, chunks)
		if streamErr != nil {
			t.Fatalf("Unexpected stream error: %v", streamErr)
		}
		if strings.Join(texts, "") != "INSIGHT:Dziś poczułem spokój" {
			t.Errorf("Unexpected stream text %q", strings.Join(texts, ""))
		}
	})

	t.Run("validation before call", func(t *testing.T) {
		provider := NewMockProvider()
		svc := NewService(provider)

		chunks, err := svc.StreamInsight(context.Background(), " ", "Albedo")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("Expected ErrValidation, got %v", err)
		}
		if chunks != nil {
			t.Error("Expected no stream on validation failure")
		}
		if provider.Calls() != 0 {
			t.Errorf("Expected no provider calls, got %d", provider.Calls())
		}
	})

	t.Run("open failure", func(t *testing.T) {
		provider := NewMockProvider()
		provider.SetAvailable(false)
		svc := NewService(provider)

		chunks, err := svc.StreamInsight(context.Background(), "tekst", "Albedo")
		if !errors.Is(err, ErrProviderCallFailed) {
			t.Fatalf("Expected ErrProviderCallFailed, got %v", err)
		}
		if chunks != nil {
			t.Error("Expected no stream when open fails")
		}
	})

	t.Run("mid-stream failure", func(t *testing.T) {
		cause := errors.New("connection reset")
		provider := NewMockProviderWithFragments("A", "B").FailStream(cause)
		svc := NewService(provider)

		chunks, err := svc.StreamInsight(context.Background(), "tekst", "Albedo")
		if err != nil {
			t.Fatalf("StreamInsight failed: %v", err)
		}

		texts, streamErr := collect(t, chunks)
		if strings.Join(texts, "|") != "A|B" {
			t.Errorf("Expected fragments before the failure, got %v", texts)
		}
		if !errors.Is(streamErr, ErrProviderCallFailed) {
			t.Errorf("Expected ErrProviderCallFailed, got %v", streamErr)
		}
		if !errors.Is(streamErr, cause) {
			t.Errorf("Expected cause to be preserved, got %v", streamErr)
		}
	})

	t.Run("cancellation", func(t *testing.T) {
		fragments := make([]string, 1000)
		for i := range fragments {
			fragments[i] = "x"
		}
		svc := NewService(NewMockProviderWithFragments(fragments...))

		ctx, cancel := context.WithCancel(context.Background())
		chunks, err := svc.StreamInsight(ctx, "tekst", "Albedo")
		if err != nil {
			t.Fatalf("StreamInsight failed: %v", err)
		}

		first := <-chunks
		if first.Err != nil || first.Text != "x" {
			t.Fatalf("Unexpected first chunk %+v", first)
		}
		cancel()

		texts, streamErr := collect(t, chunks)
		if len(texts)+1 >= len(fragments) {
			t.Errorf("Expected delivery to stop after cancel, got %d fragments", len(texts)+1)
		}
		if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
			t.Errorf("Expected cancellation error, got %v", streamErr)
		}
	})
}

func TestNew(t *testing.T) {
	newFactories := func(openai, claude *MockProvider) Factories {
		return Factories{
			VariantOpenAI: func(Credentials) (Provider, error) { return openai, nil },
			VariantClaude: func(Credentials) (Provider, error) { return claude, nil },
		}
	}

	t.Run("routes to configured variant", func(t *testing.T) {
		tests := []struct {
			provider string
			want     string
		}{
			{"openai", "openai-mock"},
			{"claude", "claude-mock"},
			{"CLAUDE", "claude-mock"},
			{"", "openai-mock"},
			{"gemini", "openai-mock"},
		}

		for _, tt := range tests {
			t.Run(tt.provider, func(t *testing.T) {
				openai := NewMockProviderWithName("openai-mock")
				claude := NewMockProviderWithName("claude-mock")

				cfg := Config{
					Provider: tt.provider,
					OpenAI:   Credentials{APIKey: "sk-openai"},
					Claude:   Credentials{APIKey: "sk-claude"},
				}
				svc, err := New(cfg, newFactories(openai, claude))
				if err != nil {
					t.Fatalf("New failed: %v", err)
				}
				if svc.Provider() != tt.want {
					t.Errorf("Expected %s, got %s", tt.want, svc.Provider())
				}

				if _, err := svc.GetInsight(context.Background(), "tekst", "Albedo"); err != nil {
					t.Fatalf("GetInsight failed: %v", err)
				}
				if tt.want == "claude-mock" && (claude.Calls() != 1 || openai.Calls() != 0) {
					t.Errorf("Expected call on claude only, got claude=%d openai=%d", claude.Calls(), openai.Calls())
				}
				if tt.want == "openai-mock" && (openai.Calls() != 1 || claude.Calls() != 0) {
					t.Errorf("Expected call on openai only, got openai=%d claude=%d", openai.Calls(), claude.Calls())
				}
			})
		}
	})

	t.Run("credentials reach factory", func(t *testing.T) {
		var got Credentials
		factories := Factories{
			VariantClaude: func(creds Credentials) (Provider, error) {
				got = creds
				return NewMockProvider(), nil
			},
		}

		cfg := Config{
			Provider: "claude",
			Claude:   Credentials{APIKey: "sk-claude", Model: "m", MaxTokens: 300},
		}
		if _, err := New(cfg, factories); err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if got.APIKey != "sk-claude" || got.Model != "m" || got.MaxTokens != 300 {
			t.Errorf("Unexpected credentials %+v", got)
		}
	})

	t.Run("missing key of active variant", func(t *testing.T) {
		built := false
		factories := Factories{
			VariantClaude: func(Credentials) (Provider, error) {
				built = true
				return NewMockProvider(), nil
			},
		}

		cfg := Config{Provider: "claude", OpenAI: Credentials{APIKey: "sk-openai"}}
		_, err := New(cfg, factories)
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("Expected ErrConfiguration, got %v", err)
		}
		if built {
			t.Error("Factory should not run without a credential")
		}
	})

	t.Run("inactive key not required", func(t *testing.T) {
		cfg := Config{Provider: "openai", OpenAI: Credentials{APIKey: "sk-openai"}}
		if _, err := New(cfg, newFactories(NewMockProvider(), NewMockProvider())); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("no factory registered", func(t *testing.T) {
		cfg := Config{Provider: "claude", Claude: Credentials{APIKey: "sk-claude"}}
		_, err := New(cfg, Factories{})
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("Expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("factory error", func(t *testing.T) {
		factories := Factories{
			VariantOpenAI: func(Credentials) (Provider, error) {
				return nil, errors.New("bad base url")
			},
		}

		cfg := Config{OpenAI: Credentials{APIKey: "sk-openai"}}
		_, err := New(cfg, factories)
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("Expected ErrConfiguration, got %v", err)
		}
		if !strings.Contains(err.Error(), "bad base url") {
			t.Errorf("Expected factory reason in error, got %q", err.Error())
		}
	})

	t.Run("options apply", func(t *testing.T) {
		attempts := 0
		provider := NewMockProviderWithCallback(func(Prompt) (string, error) {
			attempts++
			if attempts < 2 {
				return "", errors.New("temporary error")
			}
			return "ok", nil
		})
		factories := Factories{
			VariantOpenAI: func(Credentials) (Provider, error) { return provider, nil },
		}

		svc, err := New(Config{OpenAI: Credentials{APIKey: "k"}}, factories, WithRetry(2))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		text, err := svc.GetInsight(context.Background(), "tekst", "Albedo")
		if err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if text != "ok" || attempts != 2 {
			t.Errorf("Expected ok after 2 attempts, got %q after %d", text, attempts)
		}
	})
}
