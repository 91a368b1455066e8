// Package services provides the provider clients and the advisor adapter used by the council.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

// Provider names, also used as model identifier prefixes ("anthropic:claude-...").
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

var (
	// ErrMissingAPIKey is returned when a provider is used without credentials.
	ErrMissingAPIKey = errors.New("API key not configured")
	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("empty response content")
)

// providerEnvVars lists the environment variables checked for each provider, in order.
var providerEnvVars = map[string][]string{
	ProviderOpenRouter: {"OPENROUTER_API_KEY"},
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderAnthropic:  {"ANTHROPIC_API_KEY"},
	ProviderGemini:     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// ClientConstructor builds a provider client from an API key.
type ClientConstructor func(apiKey string) counciltypes.LLMClient

// SplitModelID returns the provider and provider-local model name of a model identifier.
// Identifiers without a known prefix go to OpenRouter unchanged.
func SplitModelID(modelID string) (provider string, model string) {
	if prefix, rest, ok := strings.Cut(modelID, ":"); ok {
		switch prefix {
		case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOpenRouter:
			return prefix, rest
		}
	}
	return ProviderOpenRouter, modelID
}

// Router implements counciltypes.LLMClient by dispatching each request to the provider
// named by its model identifier. Provider clients are created on first use and cached.
type Router struct {
	lookupEnv    func(string) string
	pricing      map[string]counciltypes.ModelPrice
	constructors map[string]ClientConstructor

	mu      sync.Mutex
	clients map[string]counciltypes.LLMClient
}

// NewRouter creates a router reading API keys from the process environment.
func NewRouter(pricing map[string]counciltypes.ModelPrice) *Router {
	return &Router{
		lookupEnv: os.Getenv,
		pricing:   pricing,
		constructors: map[string]ClientConstructor{
			ProviderOpenRouter: func(key string) counciltypes.LLMClient { return NewOpenRouterClient(key) },
			ProviderOpenAI:     func(key string) counciltypes.LLMClient { return NewOpenAIClient(key) },
			ProviderAnthropic:  func(key string) counciltypes.LLMClient { return NewAnthropicClient(key) },
			ProviderGemini:     func(key string) counciltypes.LLMClient { return NewGeminiClient(key) },
		},
		clients: make(map[string]counciltypes.LLMClient),
	}
}

// SetEnvLookup replaces the API key source (used by tests).
func (r *Router) SetEnvLookup(lookup func(string) string) {
	r.lookupEnv = lookup
}

// SetConstructor replaces the client constructor of a provider (used by tests).
func (r *Router) SetConstructor(provider string, constructor ClientConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[provider] = constructor
	delete(r.clients, provider)
}

// APIKeyFor returns the first non-empty API key configured for provider.
func (r *Router) APIKeyFor(provider string) (string, error) {
	envVars, ok := providerEnvVars[provider]
	if !ok {
		return "", fmt.Errorf("unsupported provider '%s'", provider)
	}
	for _, name := range envVars {
		if key := r.lookupEnv(name); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%s: %w (set %s)", provider, ErrMissingAPIKey, strings.Join(envVars, " or "))
}

// Validate checks that credentials exist for every provider the model identifiers need.
func (r *Router) Validate(modelIDs []string) error {
	seen := make(map[string]bool)
	var errs []error
	for _, modelID := range modelIDs {
		provider, _ := SplitModelID(modelID)
		if seen[provider] {
			continue
		}
		seen[provider] = true
		if _, err := r.APIKeyFor(provider); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) clientFor(provider string) (counciltypes.LLMClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[provider]; exists {
		return client, nil
	}

	constructor, ok := r.constructors[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider '%s'", provider)
	}

	apiKey, err := r.APIKeyFor(provider)
	if err != nil {
		return nil, err
	}

	client := constructor(apiKey)
	r.clients[provider] = client
	logger.Debug("Created new provider client", "provider", provider)
	return client, nil
}

// Complete routes the request to its provider. When the provider reports no fee and a
// price is configured for the model identifier, the fee is computed from token usage.
func (r *Router) Complete(ctx context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	modelID := req.Model
	provider, model := SplitModelID(modelID)

	client, err := r.clientFor(provider)
	if err != nil {
		return counciltypes.Completion{}, err
	}

	req.Model = model
	completion, err := client.Complete(ctx, req)
	if err != nil {
		return counciltypes.Completion{}, err
	}

	if !counciltypes.ValidCost(completion.CostUSD) || completion.CostUSD == 0 {
		completion.CostUSD = 0
		if price, ok := r.pricing[modelID]; ok {
			completion.CostUSD = price.Cost(completion.InputTokens, completion.OutputTokens)
		}
	}

	return completion, nil
}
