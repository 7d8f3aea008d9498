// Package anthropic implements the insight Provider on the Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	DefaultModel     = "claude-3-5-haiku-20241022"
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultMaxTokens = 300
	DefaultTimeout   = 60 * time.Second
	APIVersion       = "2023-06-01"
)

// Provider implements the insight Provider interface for the Anthropic API.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	maxTokens    int
	httpClient   *http.Client
	streamClient *http.Client
	name         string
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey    string
	Model     string        // e.g. "claude-3-5-haiku-20241022"
	BaseURL   string        // Optional, defaults to "https://api.anthropic.com"
	MaxTokens int           // Optional, defaults to 300
	Timeout   time.Duration // Optional, defaults to 60s; buffered calls only
}

// New creates a new Anthropic provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:    config.APIKey,
		model:     config.Model,
		baseURL:   config.BaseURL,
		maxTokens: config.MaxTokens,
		name:      "anthropic",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		streamClient: &http.Client{},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Generate sends the system instruction as the top-level system parameter
// and the user content as the sole message. It returns the first text block;
// responses without one resolve to "" (non-text blocks are ignored).
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

	var messagesResp messagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		return "", p.fail(ctx, &insight.ProviderError{Provider: p.name, Err: fmt.Errorf("failed to parse response: %w", err)}, startTime)
	}

	// Extract the first text block
	var content string
	var found bool
	for _, block := range messagesResp.Content {
		if block.Type == "text" {
			content = block.Text
			found = true
			break
		}
	}

	duration := time.Since(startTime)

	if !found {
		capitan.Error(ctx, insight.ResponseMalformed,
			insight.ProviderKey.Field(p.name),
			insight.ResponseIDKey.Field(messagesResp.ID),
			insight.ErrorKey.Field("no text content block in response"),
		)
	}

	fields := []capitan.Field{
		insight.ProviderKey.Field(p.name),
		insight.ModelKey.Field(messagesResp.Model),
		insight.ModeKey.Field(insight.ModeBuffered),
		insight.PromptTokensKey.Field(messagesResp.Usage.InputTokens),
		insight.CompletionTokensKey.Field(messagesResp.Usage.OutputTokens),
		insight.TotalTokensKey.Field(messagesResp.Usage.InputTokens + messagesResp.Usage.OutputTokens),
		insight.DurationMsKey.Field(int(duration.Milliseconds())),
		insight.HTTPStatusCodeKey.Field(resp.StatusCode),
		insight.ResponseIDKey.Field(messagesResp.ID),
	}
	if messagesResp.StopReason != "" {
		fields = append(fields, insight.ResponseFinishReasonKey.Field(messagesResp.StopReason))
	}
	capitan.Info(ctx, insight.ProviderCallCompleted, fields...)

	return content, nil
}

// Stream opens a streamed message and forwards the text of every
// content_block_delta/text_delta event in order. Other events are skipped.
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
			inputTokens  int
			outputTokens int
			stopReason   string
			responseID   string
		)

		err := sse.Scan(resp.Body, func(event sse.Event) (bool, error) {
			data := gjson.Parse(event.Data)

			switch data.Get("type").String() {
			case "message_start":
				responseID = data.Get("message.id").String()
				inputTokens = int(data.Get("message.usage.input_tokens").Int())
			case "content_block_delta":
				if data.Get("delta.type").String() != "text_delta" {
					return true, nil
				}
				if !emit(data.Get("delta.text").String()) {
					return false, nil
				}
				fragments++
			case "message_delta":
				stopReason = data.Get("delta.stop_reason").String()
				outputTokens = int(data.Get("usage.output_tokens").Int())
			case "message_stop":
				return false, nil
			case "error":
				return false, &insight.ProviderError{
					Provider:   p.name,
					StatusCode: resp.StatusCode,
					Type:       data.Get("error.type").String(),
					Message:    data.Get("error.message").String(),
				}
			}
			return true, nil
		})

		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			var providerErr *insight.ProviderError
			if !errors.As(err, &providerErr) {
				providerErr = &insight.ProviderError{Provider: p.name, Err: err}
			}
			return p.fail(ctx, providerErr, startTime)
		}

		capitan.Info(ctx, insight.ProviderCallCompleted,
			insight.ProviderKey.Field(p.name),
			insight.ModelKey.Field(p.model),
			insight.ModeKey.Field(insight.ModeStreamed),
			insight.FragmentCountKey.Field(fragments),
			insight.PromptTokensKey.Field(inputTokens),
			insight.CompletionTokensKey.Field(outputTokens),
			insight.TotalTokensKey.Field(inputTokens+outputTokens),
			insight.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
			insight.HTTPStatusCodeKey.Field(resp.StatusCode),
			insight.ResponseIDKey.Field(responseID),
			insight.ResponseFinishReasonKey.Field(stopReason),
		)
		return nil
	}), nil
}

func (p *Provider) newRequest(prompt insight.Prompt, stream bool) messagesRequest {
	return messagesRequest{
		Model:     p.model,
		System:    prompt.System,
		Messages:  []message{{Role: insight.RoleUser, Content: prompt.User}},
		MaxTokens: p.maxTokens,
		Stream:    stream,
	}
}

// post sends the request and returns the response on HTTP 200.
// Any other outcome is reported as a *insight.ProviderError.
func (p *Provider) post(ctx context.Context, client *http.Client, requestBody messagesRequest, startTime time.Time) (*http.Response, error) {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
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

// Request/Response types for Anthropic API

type messagesRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
