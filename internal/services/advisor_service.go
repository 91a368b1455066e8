package services

import (
	"context"
	"fmt"
	"time"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

// AdvisorService adapts an LLMClient to the advisor contract: every call yields an
// AdvisorResult and failures are captured as data, never returned as errors.
type AdvisorService struct {
	client      counciltypes.LLMClient
	callTimeout time.Duration
	now         func() time.Time
}

// NewAdvisorService wraps client. A positive callTimeout bounds each call; a timeout is
// reported as a failed result.
func NewAdvisorService(client counciltypes.LLMClient, callTimeout time.Duration) *AdvisorService {
	return &AdvisorService{
		client:      client,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Invoke sends history to modelID and returns the normalized result.
// The history is sent as-is; no framing is added.
func (s *AdvisorService) Invoke(ctx context.Context, modelID, displayName string, history []counciltypes.Message) (result counciltypes.AdvisorResult) {
	started := s.now()
	result = counciltypes.AdvisorResult{
		Advisor: displayName,
		ModelID: modelID,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Failed = true
			result.Response = fmt.Sprintf("advisor call panicked: %v", r)
			result.CostUSD = 0
		}
		result.Elapsed = s.now().Sub(started)
	}()

	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	completion, err := s.client.Complete(ctx, counciltypes.CompletionRequest{
		Model:    modelID,
		Messages: history,
	})
	if err != nil {
		logger.Debug("Advisor call failed", "advisor", displayName, "model", modelID, "error", err)
		result.Failed = true
		result.Response = err.Error()
		return result
	}

	result.Response = completion.Text
	if counciltypes.ValidCost(completion.CostUSD) {
		result.CostUSD = completion.CostUSD
	}
	return result
}
