package providers

import (
	"context"
	"fmt"
)

// SummaryRequest contains the data sent to an LLM for summarization.
type SummaryRequest struct {
	System string
	Prompt string
	// Model overrides the provider's configured model for this call.
	// Empty means use the default.
	Model       string
	MaxTokens   int
	Temperature float64
}

// SummaryResponse contains the raw response from an LLM.
type SummaryResponse struct {
	Content    string
	TokensUsed int
}

// Generator is the provider abstraction interface. Implementations must be
// safe to call concurrently; the map stage issues requests in parallel.
type Generator interface {
	GenerateSummary(ctx context.Context, req SummaryRequest) (SummaryResponse, error)
	Name() string
}

// New creates a provider by name with the given default model.
func New(provider, model string) (Generator, error) {
	switch provider {
	case "anthropic":
		return NewAnthropic(model)
	case "openai":
		return NewOpenAI(model)
	case "gemini", "google":
		return NewGemini(model)
	case "ollama", "lmstudio":
		return NewOllama(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
