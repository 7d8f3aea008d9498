package insight

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// EchoPrefix is prepended to the journal text by NewMockProvider.
const EchoPrefix = "INSIGHT:"

// MockProvider simulates a backend for testing.
// It counts calls and remembers the last prompt it received.
type MockProvider struct {
	name      string
	available atomic.Bool
	respond   func(Prompt) (string, error)
	fragments []string // Stream output; nil splits the buffered response
	streamErr error    // Delivered after fragments, if set

	generateCalls atomic.Int64
	streamCalls   atomic.Int64

	mu         sync.Mutex
	lastPrompt Prompt
}

// NewMockProvider creates a mock that echoes the user content prefixed with
// EchoPrefix, proving the journal text reaches the provider unaltered.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithName("mock")
}

// NewMockProviderWithName creates an echoing mock with a specific name.
func NewMockProviderWithName(name string) *MockProvider {
	return newMock(name, func(p Prompt) (string, error) {
		return EchoPrefix + p.User, nil
	})
}

// NewMockProviderWithResponse creates a mock that always returns response.
func NewMockProviderWithResponse(response string) *MockProvider {
	return newMock("mock-fixed", func(Prompt) (string, error) {
		return response, nil
	})
}

// NewMockProviderWithFragments creates a mock that streams fragments in order.
// Its buffered call returns the fragments joined.
func NewMockProviderWithFragments(fragments ...string) *MockProvider {
	m := NewMockProviderWithResponse(strings.Join(fragments, ""))
	m.name = "mock-fragments"
	m.fragments = fragments
	return m
}

// NewMockProviderWithError creates a mock whose calls fail with message.
func NewMockProviderWithError(message string) *MockProvider {
	return newMock("mock-error", func(Prompt) (string, error) {
		return "", &ProviderError{Provider: "mock-error", Message: message}
	})
}

// NewMockProviderWithCallback creates a mock that calls a function to generate responses.
func NewMockProviderWithCallback(callback func(Prompt) (string, error)) *MockProvider {
	return newMock("mock-callback", callback)
}

func newMock(name string, respond func(Prompt) (string, error)) *MockProvider {
	m := &MockProvider{name: name, respond: respond}
	m.available.Store(true)
	return m
}

// FailStream makes streams deliver err after the configured fragments.
func (m *MockProvider) FailStream(err error) *MockProvider {
	m.streamErr = err
	return m
}

// SetAvailable sets the availability status (for testing failures).
func (m *MockProvider) SetAvailable(available bool) {
	m.available.Store(available)
}

// Name returns the mock's name.
func (m *MockProvider) Name() string {
	return m.name
}

// Generate simulates a buffered completion.
func (m *MockProvider) Generate(_ context.Context, prompt Prompt) (string, error) {
	m.generateCalls.Add(1)
	m.record(prompt)

	if !m.available.Load() {
		return "", &ProviderError{Provider: m.name, Message: "provider is unavailable"}
	}
	return m.respond(prompt)
}

// Stream simulates an incremental completion.
func (m *MockProvider) Stream(ctx context.Context, prompt Prompt) (<-chan Chunk, error) {
	m.streamCalls.Add(1)
	m.record(prompt)

	if !m.available.Load() {
		return nil, &ProviderError{Provider: m.name, Message: "provider is unavailable"}
	}

	fragments := m.fragments
	if fragments == nil {
		response, err := m.respond(prompt)
		if err != nil {
			return nil, err
		}
		fragments = strings.SplitAfter(response, " ")
	}

	return Produce(ctx, func(emit func(string) bool) error {
		for _, fragment := range fragments {
			if !emit(fragment) {
				return nil
			}
		}
		return m.streamErr
	}), nil
}

// Calls returns the total number of Generate and Stream calls.
func (m *MockProvider) Calls() int {
	return m.GenerateCalls() + m.StreamCalls()
}

// GenerateCalls returns the number of buffered calls.
func (m *MockProvider) GenerateCalls() int {
	return int(m.generateCalls.Load())
}

// StreamCalls returns the number of streamed calls.
func (m *MockProvider) StreamCalls() int {
	return int(m.streamCalls.Load())
}

// LastPrompt returns the most recent prompt received.
func (m *MockProvider) LastPrompt() Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

func (m *MockProvider) record(prompt Prompt) {
	m.mu.Lock()
	m.lastPrompt = prompt
	m.mu.Unlock()
}
