// Package testing provides helpers for exercising insight services:
// in-process fake backends speaking the OpenAI and Anthropic wire formats,
// plus provider wrappers for sequencing, failure injection, call recording
// and latency.
package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/veranima/insight"
)

// Backend is a fake completion API served over HTTP.
// It answers buffered requests with the fragments joined and streamed
// requests with one SSE event per fragment.
type Backend struct {
	server    *httptest.Server
	mu        sync.Mutex
	fragments []string
	status    int
	errBody   string
	requests  []gjson.Result
}

// NewOpenAIBackend starts a fake chat completions endpoint.
// Point Credentials.BaseURL at Backend.URL().
func NewOpenAIBackend(fragments ...string) *Backend {
	b := &Backend{fragments: fragments}
	b.server = httptest.NewServer(http.HandlerFunc(b.serveOpenAI))
	return b
}

// NewAnthropicBackend starts a fake messages endpoint.
func NewAnthropicBackend(fragments ...string) *Backend {
	b := &Backend{fragments: fragments}
	b.server = httptest.NewServer(http.HandlerFunc(b.serveAnthropic))
	return b
}

// URL returns the base URL of the backend.
func (b *Backend) URL() string {
	return b.server.URL
}

// Close shuts the backend down.
func (b *Backend) Close() {
	b.server.Close()
}

// FailWith makes every following request answer status with body.
func (b *Backend) FailWith(status int, body string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.errBody = body
	return b
}

// Requests returns the number of requests received.
func (b *Backend) Requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// LastRequest returns the body of the most recent request.
func (b *Backend) LastRequest() gjson.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return gjson.Result{}
	}
	return b.requests[len(b.requests)-1]
}

// receive records the request and reports whether it should be answered
// normally. Failures are written here.
func (b *Backend) receive(w http.ResponseWriter, r *http.Request) (gjson.Result, bool) {
	data, _ := io.ReadAll(r.Body)
	body := gjson.ParseBytes(data)

	b.mu.Lock()
	b.requests = append(b.requests, body)
	status, errBody := b.status, b.errBody
	b.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, errBody)
		return body, false
	}
	return body, true
}

func (b *Backend) serveOpenAI(w http.ResponseWriter, r *http.Request) {
	body, ok := b.receive(w, r)
	if !ok {
		return
	}

	if !body.Get("stream").Bool() {
		writeJSON(w, map[string]any{
			"id":    "chatcmpl-test",
			"model": body.Get("model").String(),
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": strings.Join(b.fragments, "")},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": len(b.fragments), "total_tokens": 10 + len(b.fragments)},
		})
		return
	}

	events := make([]any, 0, len(b.fragments)+1)
	for _, fragment := range b.fragments {
		events = append(events, map[string]any{
			"id":      "chatcmpl-test",
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": fragment}}},
		})
	}
	events = append(events, map[string]any{
		"id":      "chatcmpl-test",
		"choices": []any{},
		"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": len(b.fragments), "total_tokens": 10 + len(b.fragments)},
	})
	writeEvents(w, events, true)
}

func (b *Backend) serveAnthropic(w http.ResponseWriter, r *http.Request) {
	body, ok := b.receive(w, r)
	if !ok {
		return
	}

	if !body.Get("stream").Bool() {
		writeJSON(w, map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"model":       body.Get("model").String(),
			"content":     []map[string]string{{"type": "text", "text": strings.Join(b.fragments, "")}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": len(b.fragments)},
		})
		return
	}

	events := []any{
		map[string]any{"type": "message_start", "message": map[string]any{"id": "msg_test", "usage": map[string]int{"input_tokens": 10}}},
		map[string]any{"type": "content_block_start", "index": 0, "content_block": map[string]string{"type": "text", "text": ""}},
	}
	for _, fragment := range b.fragments {
		events = append(events, map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": fragment},
		})
	}
	events = append(events,
		map[string]any{"type": "content_block_stop", "index": 0},
		map[string]any{"type": "message_delta", "delta": map[string]string{"stop_reason": "end_turn"}, "usage": map[string]int{"output_tokens": len(b.fragments)}},
		map[string]any{"type": "message_stop"},
	)
	writeEvents(w, events, false)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeEvents(w http.ResponseWriter, events []any, done bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, event := range events {
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	if done {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

// SequencedProvider returns a predefined sequence of responses.
// Streams deliver each response as one fragment per word.
type SequencedProvider struct {
	responses []string
	index     atomic.Int64
	name      string
}

// NewSequencedProvider creates a provider that returns responses in order.
// After the sequence is exhausted, the last response repeats.
func NewSequencedProvider(responses ...string) *SequencedProvider {
	return &SequencedProvider{responses: responses, name: "sequenced"}
}

func (p *SequencedProvider) next() (string, error) {
	if len(p.responses) == 0 {
		return "", &insight.ProviderError{Provider: p.name, Message: "no responses configured"}
	}
	idx := int(p.index.Add(1) - 1)
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

// Generate returns the next response in the sequence.
func (p *SequencedProvider) Generate(_ context.Context, _ insight.Prompt) (string, error) {
	return p.next()
}

// Stream splits the next response into word fragments.
func (p *SequencedProvider) Stream(ctx context.Context, _ insight.Prompt) (<-chan insight.Chunk, error) {
	response, err := p.next()
	if err != nil {
		return nil, err
	}
	return insight.Produce(ctx, func(emit func(string) bool) error {
		for _, fragment := range strings.SplitAfter(response, " ") {
			if !emit(fragment) {
				return nil
			}
		}
		return nil
	}), nil
}

// Name returns the provider name.
func (p *SequencedProvider) Name() string {
	return p.name
}

// Reset restarts the sequence from the beginning.
func (p *SequencedProvider) Reset() {
	p.index.Store(0)
}

// CallCount returns the number of calls made.
func (p *SequencedProvider) CallCount() int {
	return int(p.index.Load())
}

// FailingProvider fails a configurable number of times before succeeding.
type FailingProvider struct {
	failCount   atomic.Int64
	failUntil   int64
	successResp string
	failErr     *insight.ProviderError
	name        string
}

// NewFailingProvider creates a provider that fails the first n calls
// with a 503 before answering "ok".
func NewFailingProvider(failUntil int) *FailingProvider {
	return &FailingProvider{
		failUntil:   int64(failUntil),
		successResp: "ok",
		failErr:     &insight.ProviderError{Provider: "failing", StatusCode: http.StatusServiceUnavailable, Message: "Service unavailable"},
		name:        "failing",
	}
}

// WithSuccessResponse sets the response returned after failures end.
func (p *FailingProvider) WithSuccessResponse(resp string) *FailingProvider {
	p.successResp = resp
	return p
}

// WithError sets the error returned while failing.
func (p *FailingProvider) WithError(err *insight.ProviderError) *FailingProvider {
	p.failErr = err
	return p
}

func (p *FailingProvider) attempt() error {
	if p.failCount.Add(1) <= p.failUntil {
		return p.failErr
	}
	return nil
}

// Generate fails until the threshold is reached, then succeeds.
func (p *FailingProvider) Generate(_ context.Context, _ insight.Prompt) (string, error) {
	if err := p.attempt(); err != nil {
		return "", err
	}
	return p.successResp, nil
}

// Stream fails to open until the threshold is reached.
func (p *FailingProvider) Stream(ctx context.Context, _ insight.Prompt) (<-chan insight.Chunk, error) {
	if err := p.attempt(); err != nil {
		return nil, err
	}
	return insight.Produce(ctx, func(emit func(string) bool) error {
		emit(p.successResp)
		return nil
	}), nil
}

// Name returns the provider name.
func (p *FailingProvider) Name() string {
	return p.name
}

// Attempts returns the total number of calls, failed or not.
func (p *FailingProvider) Attempts() int {
	return int(p.failCount.Load())
}

// RecordedCall captures a single provider call.
type RecordedCall struct {
	Prompt insight.Prompt
	Stream bool
}

// CallRecorder wraps a provider and records every prompt it receives.
type CallRecorder struct {
	provider insight.Provider
	calls    []RecordedCall
	mu       sync.Mutex
}

// NewCallRecorder wraps a provider with call recording.
func NewCallRecorder(provider insight.Provider) *CallRecorder {
	return &CallRecorder{
		provider: provider,
		calls:    make([]RecordedCall, 0),
	}
}

func (r *CallRecorder) record(prompt insight.Prompt, stream bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, RecordedCall{Prompt: prompt, Stream: stream})
}

// Generate records the prompt and delegates to the wrapped provider.
func (r *CallRecorder) Generate(ctx context.Context, prompt insight.Prompt) (string, error) {
	r.record(prompt, false)
	return r.provider.Generate(ctx, prompt)
}

// Stream records the prompt and delegates to the wrapped provider.
func (r *CallRecorder) Stream(ctx context.Context, prompt insight.Prompt) (<-chan insight.Chunk, error) {
	r.record(prompt, true)
	return r.provider.Stream(ctx, prompt)
}

// Name returns the wrapped provider's name.
func (r *CallRecorder) Name() string {
	return r.provider.Name()
}

// Calls returns a copy of all recorded calls.
func (r *CallRecorder) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]RecordedCall, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// CallCount returns the number of calls recorded.
func (r *CallRecorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// LastCall returns the most recent call, or nil if no calls made.
func (r *CallRecorder) LastCall() *RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.calls) == 0 {
		return nil
	}
	call := r.calls[len(r.calls)-1]
	return &call
}

// LatencyProvider wraps a provider and adds artificial latency.
type LatencyProvider struct {
	provider insight.Provider
	delay    time.Duration
}

// NewLatencyProvider wraps a provider with artificial delay.
// The delay is applied before each call and respects context cancellation.
func NewLatencyProvider(provider insight.Provider, delay time.Duration) *LatencyProvider {
	return &LatencyProvider{provider: provider, delay: delay}
}

func (p *LatencyProvider) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generate adds latency then delegates to the wrapped provider.
func (p *LatencyProvider) Generate(ctx context.Context, prompt insight.Prompt) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	return p.provider.Generate(ctx, prompt)
}

// Stream adds latency then delegates to the wrapped provider.
func (p *LatencyProvider) Stream(ctx context.Context, prompt insight.Prompt) (<-chan insight.Chunk, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.provider.Stream(ctx, prompt)
}

// Name returns the wrapped provider's name.
func (p *LatencyProvider) Name() string {
	return p.provider.Name()
}

// Collect drains a stream, returning the joined text and the terminal error.
// It gives up after timeout so a stuck stream fails the test instead of
// hanging it.
func Collect(chunks <-chan insight.Chunk, timeout time.Duration) (string, error) {
	var sb strings.Builder
	deadline := time.After(timeout)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Err != nil {
				return sb.String(), chunk.Err
			}
			sb.WriteString(chunk.Text)
		case <-deadline:
			return sb.String(), fmt.Errorf("stream not closed after %s", timeout)
		}
	}
}
