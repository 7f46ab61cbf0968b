package domain

// QueryType is the intent category of a query.
type QueryType string

const (
	QueryTypeSummary     QueryType = "summary"
	QueryTypeExplanation QueryType = "explanation"
	QueryTypeProcess     QueryType = "process"
	QueryTypeReasoning   QueryType = "reasoning"
	QueryTypeTemporal    QueryType = "temporal"
	QueryTypeEntity      QueryType = "entity"
	QueryTypeComparison  QueryType = "comparison"
	QueryTypeGeneral     QueryType = "general"
)

// QueryContext is the retrieval plan derived from a query.
type QueryContext struct {
	QueryType  QueryType
	RequestedK int
}

// RetrievalStatus names the outcome of a retrieval so callers can tell an
// empty result from an unbuilt index without inspecting errors.
type RetrievalStatus string

const (
	RetrievalOK          RetrievalStatus = "ok"
	RetrievalEmpty       RetrievalStatus = "empty"
	RetrievalNotBuilt    RetrievalStatus = "not_built"
	RetrievalUnavailable RetrievalStatus = "unavailable"
)

// HarmThreshold is a content safety threshold per harm category.
type HarmThreshold struct {
	Category  string
	Threshold string
}

// GenerationOptions are the sampling parameters passed to a synthesizer.
type GenerationOptions struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxTokens        int
	SafetyThresholds []HarmThreshold
}

// DefaultGenerationOptions returns low-temperature options tuned for
// grounded answers.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		Temperature: 0.1,
		TopP:        0.9,
		TopK:        40,
		MaxTokens:   1000,
		SafetyThresholds: []HarmThreshold{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		},
	}
}

// Answer is the synthesized (or fallback) response to a query.
type Answer struct {
	Text        string `json:"text"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	ContextUsed int    `json:"context_used"`
}

// ProviderStatus reports whether the synthesis provider is reachable.
type ProviderStatus struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Message  string `json:"message,omitempty"`
}
