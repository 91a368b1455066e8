package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"

	"google.golang.org/genai"
)

// GeminiClient implements counciltypes.LLMClient for the Gemini API.
// The SDK client is created lazily on first use.
type GeminiClient struct {
	apiKey string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey}
}

func (c *GeminiClient) getClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c.client = client
	logger.Debug("Gemini client initialized", "provider", ProviderGemini)
	return client, nil
}

// Complete sends a generate-content request to Gemini.
func (c *GeminiClient) Complete(ctx context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	logger.ProviderCall(ProviderGemini, req.Model, len(req.Messages))

	client, err := c.getClient(ctx)
	if err != nil {
		return counciltypes.Completion{}, err
	}

	contents, systemPrompt := convertMessagesToGemini(req.Messages)
	config := buildGenerationConfig(req, systemPrompt)

	result, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		logger.Debug("Gemini request failed", "error", err)
		return counciltypes.Completion{}, fmt.Errorf("gemini request failed: %w", err)
	}

	text := extractGeminiText(result)
	if text == "" {
		return counciltypes.Completion{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	completion := counciltypes.Completion{Text: text}
	if result.UsageMetadata != nil {
		completion.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}

	logger.Debug("Gemini response received", "content_length", len(text))
	return completion, nil
}

// convertMessagesToGemini maps the conversation to Gemini contents. Gemini names the
// assistant role "model"; system messages go to SystemInstruction.
func convertMessagesToGemini(history []counciltypes.Message) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(history))
	var system []string

	for _, msg := range history {
		var role string
		switch msg.Role {
		case counciltypes.RoleUser:
			role = string(genai.RoleUser)
		case counciltypes.RoleAssistant:
			role = string(genai.RoleModel)
		case counciltypes.RoleSystem:
			system = append(system, msg.Content)
			continue
		default:
			continue
		}

		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: msg.Content}},
			Role:  role,
		})
	}

	return contents, strings.Join(system, "\n\n")
}

func buildGenerationConfig(req counciltypes.CompletionRequest, systemPrompt string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if req.Temperature != nil {
		temperature := float32(*req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	return config
}

// extractGeminiText concatenates the non-thought text parts of all candidates.
func extractGeminiText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}

	var content strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			content.WriteString(part.Text)
		}
	}
	return content.String()
}
