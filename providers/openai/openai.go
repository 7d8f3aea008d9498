// Package openai implements the insight Provider on the OpenAI chat-completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zoobzio/capitan"

	"github.com/veranima/insight"
	"github.com/veranima/insight/internal/sse"
)

// Defaults applied by New.
const (
	DefaultModel   = "gpt-5-nano"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 60 * time.Second
)

// Provider implements the insight Provider interface for the OpenAI API.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	maxTokens    int
	httpClient   *http.Client
	streamClient *http.Client
	name         string
}

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey    string
	Model     string        // e.g. "gpt-5-nano", "gpt-4o-mini"
	BaseURL   string        // Optional, defaults to "https://api.openai.com/v1"
	MaxTokens int           // Optional, sent as max_completion_tokens when set
	Timeout   time.Duration // Optional, defaults to 60s; buffered calls only
}

// New creates a new OpenAI provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:    config.APIKey,
		model:     config.Model,
		baseURL:   config.BaseURL,
		maxTokens: config.MaxTokens,
		name:      "openai",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// Streams are bounded by the caller's context, not a wall clock.
		streamClient: &http.Client{},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Generate sends the system instruction and user content as two chat
// messages and returns the first completion's text.
func (p *Provider) Generate(ctx context.Context, prompt insight.Prompt) (string, error) {
	startTime := time.Now()

	capitan.Info(ctx, insight.ProviderCallStarted,
		insight.ProviderKey.Field(p.name),
		insight.ModelKey.Field(p.model),
		insight.ModeKey.Field(insight.ModeBuffered),
	)

	resp, err := p.post(ctx, p.httpClient, p.newRequest(prompt, false), startTime)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", p.fail(ctx, &insight.ProviderError{Provider: p.name, Err: fmt.Errorf("failed to read response: %w", err)}, startTime)
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		return "", p.fail(ctx, &insight.ProviderError{Provider: p.name, Err: fmt.Errorf("failed to parse response: %w", err)}, startTime)
	}

	duration := time.Since(startTime)

	fields := []capitan.Field{
		insight.ProviderKey.Field(p.name),
		insight.ModelKey.Field(completionResp.Model),
		insight.ModeKey.Field(insight.ModeBuffered),
		insight.PromptTokensKey.Field(completionResp.Usage.PromptTokens),
		insight.CompletionTokensKey.Field(completionResp.Usage.CompletionTokens),
		insight.TotalTokensKey.Field(completionResp.Usage.TotalTokens),
		insight.DurationMsKey.Field(int(duration.Milliseconds())),
		insight.HTTPStatusCodeKey.Field(resp.StatusCode),
		insight.ResponseIDKey.Field(completionResp.ID),
	}

	// No choices is degenerate output, not a failure: resolve to "".
	if len(completionResp.Choices) == 0 || completionResp.Choices[0].Message.Content == "" {
		capitan.Error(ctx, insight.ResponseMalformed,
			insight.ProviderKey.Field(p.name),
			insight.ResponseIDKey.Field(completionResp.ID),
			insight.ErrorKey.Field("no completion text in response"),
		)
		capitan.Info(ctx, insight.ProviderCallCompleted, fields...)
		return "", nil
	}

	if completionResp.Choices[0].FinishReason != "" {
		fields = append(fields, insight.ResponseFinishReasonKey.Field(completionResp.Choices[0].FinishReason))
	}
	capitan.Info(ctx, insight.ProviderCallCompleted, fields...)

	return completionResp.Choices[0].Message.Content, nil
}

// Stream opens a streamed completion and forwards each delta's content in
// arrival order until the backend sends [DONE].
func (p *Provider) Stream(ctx context.Context, prompt insight.Prompt) (<-chan insight.Chunk, error) {
	startTime := time.Now()

	capitan.Info(ctx, insight.ProviderCallStarted,
		insight.ProviderKey.Field(p.name),
		insight.ModelKey.Field(p.model),
		insight.ModeKey.Field(insight.ModeStreamed),
	)

	resp, err := p.post(ctx, p.streamClient, p.newRequest(prompt, true), startTime)
	if err != nil {
		return nil, err
	}

	return insight.Produce(ctx, func(emit func(string) bool) error {
		defer resp.Body.Close()

		var (
			fragments    int
			finishReason string
			usage        gjson.Result
			responseID   string
		)

		err := sse.Scan(resp.Body, func(event sse.Event) (bool, error) {
			if event.Data == "[DONE]" {
				return false, nil
			}

			data := gjson.Parse(event.Data)
			if msg := data.Get("error.message"); msg.Exists() {
				return false, &insight.ProviderError{
					Provider:   p.name,
					StatusCode: resp.StatusCode,
					Type:       data.Get("error.type").String(),
					Message:    msg.String(),
				}
			}

			if id := data.Get("id"); id.Exists() {
				responseID = id.String()
			}
			if u := data.Get("usage"); u.IsObject() {
				usage = u
			}
			if reason := data.Get("choices.0.finish_reason"); reason.Type == gjson.String {
				finishReason = reason.String()
			}

			content := data.Get("choices.0.delta.content").String()
			if content == "" {
				return true, nil
			}
			if !emit(content) {
				return false, nil
			}
			fragments++
			return true, nil
		})

		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return p.fail(ctx, asStreamError(p.name, err), startTime)
		}

		capitan.Info(ctx, insight.ProviderCallCompleted,
			insight.ProviderKey.Field(p.name),
			insight.ModelKey.Field(p.model),
			insight.ModeKey.Field(insight.ModeStreamed),
			insight.FragmentCountKey.Field(fragments),
			insight.PromptTokensKey.Field(int(usage.Get("prompt_tokens").Int())),
			insight.CompletionTokensKey.Field(int(usage.Get("completion_tokens").Int())),
			insight.TotalTokensKey.Field(int(usage.Get("total_tokens").Int())),
			insight.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
			insight.HTTPStatusCodeKey.Field(resp.StatusCode),
			insight.ResponseIDKey.Field(responseID),
			insight.ResponseFinishReasonKey.Field(finishReason),
		)
		return nil
	}), nil
}

func (p *Provider) newRequest(prompt insight.Prompt, stream bool) chatCompletionRequest {
	req := chatCompletionRequest{
		Model: p.model,
		Messages: []message{
			{Role: insight.RoleSystem, Content: prompt.System},
			{Role: insight.RoleUser, Content: prompt.User},
		},
		MaxCompletionTokens: p.maxTokens,
		Stream:              stream,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

// post sends the request and returns the response on HTTP 200.
// Any other outcome is reported as a *insight.ProviderError.
func (p *Provider) post(ctx context.Context, client *http.Client, requestBody chatCompletionRequest, startTime time.Time) (*http.Response, error) {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if requestBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, p.fail(ctx, &insight.ProviderError{Provider: p.name, Err: err}, startTime)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	providerErr := &insight.ProviderError{Provider: p.name, StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(resp.Body)

	var errorResp errorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		providerErr.Message = errorResp.Error.Message
		providerErr.Type = errorResp.Error.Type
		if providerErr.Type == "" {
			providerErr.Type = errorResp.Error.Code
		}
	}

	return nil, p.fail(ctx, providerErr, startTime)
}

// fail emits provider.call.failed and returns err.
func (p *Provider) fail(ctx context.Context, err *insight.ProviderError, startTime time.Time) error {
	fields := []capitan.Field{
		insight.ProviderKey.Field(p.name),
		insight.ModelKey.Field(p.model),
		insight.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		insight.ErrorKey.Field(err.Error()),
	}
	if err.StatusCode != 0 {
		fields = append(fields, insight.HTTPStatusCodeKey.Field(err.StatusCode))
	}
	if err.Type != "" {
		fields = append(fields, insight.APIErrorTypeKey.Field(err.Type))
	}

	capitan.Error(ctx, insight.ProviderCallFailed, fields...)
	return err
}

func asStreamError(provider string, err error) *insight.ProviderError {
	if providerErr, ok := err.(*insight.ProviderError); ok {
		return providerErr
	}
	return &insight.ProviderError{Provider: provider, Err: err}
}

// Request/Response types for OpenAI API

type chatCompletionRequest struct {
	Model               string         `json:"model"`
	Messages            []message      `json:"messages"`
	MaxCompletionTokens int            `json:"max_completion_tokens,omitempty"`
	Stream              bool           `json:"stream,omitempty"`
	StreamOptions       *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
