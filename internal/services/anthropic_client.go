package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

// defaultAnthropicMaxTokens is sent when the request leaves MaxTokens unset; the API requires one.
const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements counciltypes.LLMClient for Anthropic's Messages API.
// The SDK client is created lazily on first use.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	once    sync.Once
	client  *anthropic.Client
	initErr error
}

// NewAnthropicClient creates a new Anthropic client with lazy initialization.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey}
}

// WithBaseURL points the client at a different endpoint (used by tests).
func (c *AnthropicClient) WithBaseURL(baseURL string, httpClient *http.Client) *AnthropicClient {
	c.baseURL = baseURL
	c.httpClient = httpClient
	return c
}

func (c *AnthropicClient) getClient() (*anthropic.Client, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
			return
		}

		options := []option.RequestOption{option.WithAPIKey(c.apiKey)}
		if c.baseURL != "" {
			options = append(options, option.WithBaseURL(c.baseURL), option.WithMaxRetries(0))
		}
		if c.httpClient != nil {
			options = append(options, option.WithHTTPClient(c.httpClient))
		}

		client := anthropic.NewClient(options...)
		c.client = &client
		logger.Debug("Anthropic client initialized", "provider", ProviderAnthropic)
	})
	return c.client, c.initErr
}

// Complete sends a message request to Anthropic.
func (c *AnthropicClient) Complete(ctx context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	logger.ProviderCall(ProviderAnthropic, req.Model, len(req.Messages))

	client, err := c.getClient()
	if err != nil {
		return counciltypes.Completion{}, err
	}

	messages, systemPrompt := convertMessagesToAnthropic(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := client.Messages.New(ctx, params)
	if err != nil {
		logger.Debug("Anthropic request failed", "error", err)
		return counciltypes.Completion{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	if content.Len() == 0 {
		return counciltypes.Completion{}, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	logger.Debug("Anthropic response received", "content_length", content.Len())
	return counciltypes.Completion{
		Text:         content.String(),
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}, nil
}

// convertMessagesToAnthropic splits system messages out of the conversation, since the
// Messages API takes them as a separate parameter.
func convertMessagesToAnthropic(history []counciltypes.Message) ([]anthropic.MessageParam, string) {
	messages := make([]anthropic.MessageParam, 0, len(history))
	var system []string

	for _, msg := range history {
		switch msg.Role {
		case counciltypes.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case counciltypes.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case counciltypes.RoleSystem:
			system = append(system, msg.Content)
		}
	}

	return messages, strings.Join(system, "\n\n")
}
