package insight

import "strings"

// Request is the inbound payload of an insight call.
type Request struct {
	JournalEntry string `json:"journalEntry" desc:"Journal entry text, passed to the model verbatim"`
	CurrentStage string `json:"currentStage" desc:"Current stage: Nigredo, Albedo, Citrinitas or Rubedo"`
}

// Validate rejects empty or whitespace-only fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.JournalEntry) == "" {
		return &ValidationError{Field: "journalEntry", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.CurrentStage) == "" {
		return &ValidationError{Field: "currentStage", Reason: "is required"}
	}
	return nil
}

// Response is the outbound payload of a buffered insight call.
type Response struct {
	Insight string `json:"insight" desc:"Generated insight"`
}

// Call flows through the pipz pipeline.
// It carries the composed prompt in and the provider output back.
type Call struct {
	// Input fields
	Prompt Prompt
	Stream bool // Open a stream instead of a buffered completion

	// Metadata fields
	RequestID    string
	Stage        Stage
	ProviderName string

	// Output fields (populated by pipeline)
	Response string       // Buffered text
	Chunks   <-chan Chunk // Open stream
}
