package counciltypes

import (
	"context"
	"math"
	"time"
)

// CompletionRequest is a provider-neutral chat completion request.
type CompletionRequest struct {
	Model       string    // model identifier, possibly provider-prefixed
	Messages    []Message // full ordered conversation
	Temperature *float64  // nil leaves the provider default
	MaxTokens   int       // 0 leaves the provider default
}

// Completion is a successful provider response.
type Completion struct {
	Text         string
	CostUSD      float64 // provider-reported or priced fee, 0 when unknown
	InputTokens  int64
	OutputTokens int64
}

// LLMClient defines the contract for provider implementations.
// Implementations return an error for any failure; callers that must not fail
// wrap the client in an adapter that converts errors to data.
type LLMClient interface {
	// Complete sends one chat completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// AdvisorResult is the outcome of one advisor call. It is never persisted on its own.
type AdvisorResult struct {
	Advisor  string        // friendly name, the correlation key within a turn
	ModelID  string        // model identifier the call was sent to
	Response string        // reply text, or the error text when Failed
	CostUSD  float64       // 0 when Failed
	Failed   bool          // true when the call produced no usable reply
	Elapsed  time.Duration // wall time of the call
}

// ModelPrice is a per-model token price in US dollars per million tokens.
// It prices calls whose provider does not report a fee.
type ModelPrice struct {
	InputPerMTok  float64 `toml:"input_per_mtok"`
	OutputPerMTok float64 `toml:"output_per_mtok"`
}

// ValidCost reports whether cost is a usable fee: finite and not negative.
func ValidCost(cost float64) bool {
	return cost >= 0 && !math.IsInf(cost, 0) && !math.IsNaN(cost)
}

// Cost returns the fee for the given token counts, never negative.
func (p ModelPrice) Cost(inputTokens, outputTokens int64) float64 {
	cost := float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
	if !ValidCost(cost) {
		return 0
	}
	return cost
}
