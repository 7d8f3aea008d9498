package insight

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewMockProvider(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		provider := NewMockProvider()

		response, err := provider.Generate(context.Background(), Prompt{System: "s", User: "tekst"})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if response != EchoPrefix+"tekst" {
			t.Errorf("Expected echo, got %q", response)
		}
		if provider.Name() != "mock" {
			t.Errorf("Expected name 'mock', got %q", provider.Name())
		}
	})

	t.Run("records prompt", func(t *testing.T) {
		provider := NewMockProvider()
		prompt := Compose("tekst", "Albedo")

		_, _ = provider.Generate(context.Background(), prompt)
		if provider.LastPrompt() != prompt {
			t.Error("LastPrompt did not record the prompt")
		}
	})

	t.Run("stream splits response", func(t *testing.T) {
		provider := NewMockProvider()

		chunks, err := provider.Stream(context.Background(), Prompt{System: "s", User: "jeden dwa trzy"})
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}

		texts, streamErr := collect(t, chunks)
		if streamErr != nil {
			t.Fatalf("Unexpected stream error: %v", streamErr)
		}
		if len(texts) != 3 {
			t.Errorf("Expected 3 fragments, got %v", texts)
		}
		if strings.Join(texts, "") != EchoPrefix+"jeden dwa trzy" {
			t.Errorf("Unexpected stream text %q", strings.Join(texts, ""))
		}
	})
}

func TestNewMockProviderWithName(t *testing.T) {
	provider := NewMockProviderWithName("test-provider")
	if provider.Name() != "test-provider" {
		t.Errorf("Expected name 'test-provider', got '%s'", provider.Name())
	}
}

func TestNewMockProviderWithResponse(t *testing.T) {
	provider := NewMockProviderWithResponse("stała odpowiedź")

	for i := 0; i < 3; i++ {
		response, err := provider.Generate(context.Background(), Prompt{User: "x"})
		if err != nil || response != "stała odpowiedź" {
			t.Errorf("Call %d: unexpected %q, %v", i, response, err)
		}
	}
	if provider.GenerateCalls() != 3 {
		t.Errorf("Expected 3 calls, got %d", provider.GenerateCalls())
	}
}

func TestNewMockProviderWithFragments(t *testing.T) {
	provider := NewMockProviderWithFragments("A", "B", "C")

	response, err := provider.Generate(context.Background(), Prompt{User: "x"})
	if err != nil || response != "ABC" {
		t.Errorf("Expected joined fragments, got %q, %v", response, err)
	}

	chunks, err := provider.Stream(context.Background(), Prompt{User: "x"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	texts, _ := collect(t, chunks)
	if strings.Join(texts, "|") != "A|B|C" {
		t.Errorf("Expected A|B|C, got %v", texts)
	}
	if provider.Calls() != 2 {
		t.Errorf("Expected 2 calls, got %d", provider.Calls())
	}
}

func TestNewMockProviderWithError(t *testing.T) {
	provider := NewMockProviderWithError("boom")

	_, err := provider.Generate(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrProviderCallFailed) {
		t.Errorf("Expected ErrProviderCallFailed, got %v", err)
	}

	chunks, err := provider.Stream(context.Background(), Prompt{User: "x"})
	if err == nil || chunks != nil {
		t.Error("Expected stream open to fail")
	}
}

func TestMockProviderSetAvailable(t *testing.T) {
	provider := NewMockProvider()
	provider.SetAvailable(false)

	_, err := provider.Generate(context.Background(), Prompt{User: "x"})
	if err == nil {
		t.Error("Expected error when unavailable")
	}

	provider.SetAvailable(true)
	if _, err := provider.Generate(context.Background(), Prompt{User: "x"}); err != nil {
		t.Errorf("Expected success when available, got %v", err)
	}
}
