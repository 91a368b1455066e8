package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint used for unprefixed model identifiers.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterCostHeader carries the fee of a call in US dollars.
const openRouterCostHeader = "x-openrouter-cost"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string            // empty uses the SDK default (api.openai.com)
	Headers      map[string]string // extra headers sent with every request
	HTTPClient   *http.Client
	MaxRetries   int  // negative uses the SDK default
	ReportsCost  bool // read the fee from the response (OpenRouter)
}

// OpenAIClient implements counciltypes.LLMClient with the openai-go SDK.
// It serves both OpenAI itself and OpenAI-compatible gateways such as OpenRouter.
// The SDK client is created lazily on first use.
type OpenAIClient struct {
	config OpenAIConfig

	once    sync.Once
	client  *openai.Client
	initErr error
}

// NewOpenAIClient creates a client talking to api.openai.com.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{config: OpenAIConfig{
		ProviderName: ProviderOpenAI,
		APIKey:       apiKey,
		MaxRetries:   -1,
	}}
}

// NewOpenRouterClient creates a client for OpenRouter that reads per-call fees.
func NewOpenRouterClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(OpenAIConfig{
		ProviderName: ProviderOpenRouter,
		APIKey:       apiKey,
		BaseURL:      OpenRouterBaseURL,
		Headers: map[string]string{
			"X-Title": "AI Council",
		},
		MaxRetries:  -1,
		ReportsCost: true,
	})
}

// NewOpenAIClientWithConfig creates a client from an explicit configuration.
func NewOpenAIClientWithConfig(config OpenAIConfig) *OpenAIClient {
	if config.ProviderName == "" {
		config.ProviderName = ProviderOpenAI
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}
	config.Headers = headers

	return &OpenAIClient{config: config}
}

func (c *OpenAIClient) getClient() (*openai.Client, error) {
	c.once.Do(func() {
		if c.config.APIKey == "" {
			c.initErr = fmt.Errorf("%s: %w", c.config.ProviderName, ErrMissingAPIKey)
			return
		}

		options := []option.RequestOption{option.WithAPIKey(c.config.APIKey)}
		if c.config.BaseURL != "" {
			options = append(options, option.WithBaseURL(c.config.BaseURL))
		}
		for k, v := range c.config.Headers {
			options = append(options, option.WithHeader(k, v))
		}
		if c.config.HTTPClient != nil {
			options = append(options, option.WithHTTPClient(c.config.HTTPClient))
		}
		if c.config.MaxRetries >= 0 {
			options = append(options, option.WithMaxRetries(c.config.MaxRetries))
		}

		client := openai.NewClient(options...)
		c.client = &client
		logger.Debug("OpenAI client initialized", "provider", c.config.ProviderName, "baseURL", c.config.BaseURL)
	})
	return c.client, c.initErr
}

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	logger.ProviderCall(c.config.ProviderName, req.Model, len(req.Messages))

	client, err := c.getClient()
	if err != nil {
		return counciltypes.Completion{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: convertMessagesToOpenAI(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	var httpResp *http.Response
	requestOptions := []option.RequestOption{option.WithResponseInto(&httpResp)}
	if c.config.ReportsCost {
		requestOptions = append(requestOptions, option.WithJSONSet("usage", map[string]any{"include": true}))
	}

	completion, err := client.Chat.Completions.New(ctx, params, requestOptions...)
	if err != nil {
		logger.Debug("OpenAI request failed", "provider", c.config.ProviderName, "error", err)
		return counciltypes.Completion{}, fmt.Errorf("%s request failed: %w", c.config.ProviderName, err)
	}

	if len(completion.Choices) == 0 {
		return counciltypes.Completion{}, fmt.Errorf("%s: no response choices returned", c.config.ProviderName)
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return counciltypes.Completion{}, fmt.Errorf("%s: %w", c.config.ProviderName, ErrEmptyResponse)
	}

	result := counciltypes.Completion{
		Text:         content,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	if c.config.ReportsCost {
		result.CostUSD = reportedCost(httpResp, completion.RawJSON())
	}

	logger.Debug("OpenAI response received", "provider", c.config.ProviderName, "content_length", len(content), "cost", result.CostUSD)
	return result, nil
}

// reportedCost reads the call fee from the cost header, falling back to usage.cost in the body.
// Missing, malformed, negative or non-finite values yield 0.
func reportedCost(resp *http.Response, rawJSON string) float64 {
	if resp != nil {
		if header := strings.TrimSpace(resp.Header.Get(openRouterCostHeader)); header != "" {
			if cost, err := strconv.ParseFloat(header, 64); err == nil && counciltypes.ValidCost(cost) {
				return cost
			}
		}
	}

	if rawJSON != "" {
		if cost := gjson.Get(rawJSON, "usage.cost"); cost.Exists() && counciltypes.ValidCost(cost.Float()) {
			return cost.Float()
		}
	}

	return 0
}

// convertMessagesToOpenAI converts council messages to OpenAI format.
func convertMessagesToOpenAI(history []counciltypes.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))

	for _, msg := range history {
		switch msg.Role {
		case counciltypes.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case counciltypes.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case counciltypes.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			continue
		}
	}

	return messages
}
