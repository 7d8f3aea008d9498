package insight

import "github.com/zoobzio/capitan"

// Signals for hook events.
var (
	RequestStarted        = capitan.NewSignal("insight.request.started", "Buffered insight request started")
	RequestCompleted      = capitan.NewSignal("insight.request.completed", "Buffered insight request completed")
	RequestFailed         = capitan.NewSignal("insight.request.failed", "Buffered insight request failed")
	StreamStarted         = capitan.NewSignal("insight.stream.started", "Insight stream opened")
	StreamCompleted       = capitan.NewSignal("insight.stream.completed", "Insight stream ended normally")
	StreamFailed          = capitan.NewSignal("insight.stream.failed", "Insight stream failed")
	ProviderCallStarted   = capitan.NewSignal("insight.provider.call.started", "Backend call started")
	ProviderCallCompleted = capitan.NewSignal("insight.provider.call.completed", "Backend call completed")
	ProviderCallFailed    = capitan.NewSignal("insight.provider.call.failed", "Backend call failed")
	ResponseMalformed     = capitan.NewSignal("insight.response.malformed", "Backend response could not be decoded")
)

// Keys for hook event fields.
var (
	// Request identification.
	RequestIDKey = capitan.NewStringKey("insight.request.id")
	ModeKey      = capitan.NewStringKey("insight.mode")
	StageKey     = capitan.NewStringKey("insight.stage")

	// Input/Output sizes. Journal text is never put on the bus.
	InputLengthKey   = capitan.NewIntKey("insight.input.length")
	OutputLengthKey  = capitan.NewIntKey("insight.output.length")
	FragmentCountKey = capitan.NewIntKey("insight.fragments")

	// Error information.
	ErrorKey = capitan.NewStringKey("insight.error")

	// Provider information.
	ProviderKey = capitan.NewStringKey("insight.provider")
	ModelKey    = capitan.NewStringKey("insight.model")

	// Provider metrics.
	PromptTokensKey     = capitan.NewIntKey("insight.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("insight.tokens.completion")
	TotalTokensKey      = capitan.NewIntKey("insight.tokens.total")
	DurationMsKey       = capitan.NewIntKey("insight.duration.ms")

	// HTTP/API metadata.
	HTTPStatusCodeKey = capitan.NewIntKey("insight.http.status.code")
	APIErrorTypeKey   = capitan.NewStringKey("insight.api.error.type")

	// Response metadata.
	ResponseIDKey           = capitan.NewStringKey("insight.response.id")
	ResponseFinishReasonKey = capitan.NewStringKey("insight.response.finish.reason")
)

// Execution modes reported under ModeKey.
const (
	ModeBuffered = "buffered"
	ModeStreamed = "streamed"
)
