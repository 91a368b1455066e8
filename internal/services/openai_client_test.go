package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicouncil/pkg/counciltypes"
)

const chatCompletionBody = `{
  "id": "gen-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "openai/gpt-4o",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "hello council"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15%s}
}`

func newOpenRouterTestServer(t *testing.T, costHeader, usageExtra string, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if captured != nil {
			body := map[string]any{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*captured = body
		}

		w.Header().Set("Content-Type", "application/json")
		if costHeader != "" {
			w.Header().Set(openRouterCostHeader, costHeader)
		}
		_, _ = w.Write([]byte(strings.Replace(chatCompletionBody, "%s", usageExtra, 1)))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestOpenRouterClient(baseURL string) *OpenAIClient {
	return NewOpenAIClientWithConfig(OpenAIConfig{
		ProviderName: ProviderOpenRouter,
		APIKey:       "test-key",
		BaseURL:      baseURL,
		MaxRetries:   0,
		ReportsCost:  true,
	})
}

func TestOpenAIClient_Complete_CostFromHeader(t *testing.T) {
	server := newOpenRouterTestServer(t, "0.0123", `, "cost": 0.5`, nil)
	client := newTestOpenRouterClient(server.URL)

	completion, err := client.Complete(context.Background(), counciltypes.CompletionRequest{
		Model:    "openai/gpt-4o",
		Messages: []counciltypes.Message{{Role: counciltypes.RoleUser, Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello council", completion.Text)
	assert.InDelta(t, 0.0123, completion.CostUSD, 1e-12)
	assert.Equal(t, int64(10), completion.InputTokens)
	assert.Equal(t, int64(5), completion.OutputTokens)
}

func TestOpenAIClient_Complete_CostFromUsage(t *testing.T) {
	var body map[string]any
	server := newOpenRouterTestServer(t, "", `, "cost": 0.0042`, &body)
	client := newTestOpenRouterClient(server.URL)

	temperature := 0.1
	completion, err := client.Complete(context.Background(), counciltypes.CompletionRequest{
		Model:       "openai/gpt-4o",
		Messages:    []counciltypes.Message{{Role: counciltypes.RoleUser, Content: "hi"}},
		Temperature: &temperature,
		MaxTokens:   20,
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.0042, completion.CostUSD, 1e-12)

	assert.Equal(t, map[string]any{"include": true}, body["usage"])
	assert.Equal(t, "openai/gpt-4o", body["model"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-12)
	assert.EqualValues(t, 20, body["max_tokens"])
}

func TestOpenAIClient_Complete_NoCostReported(t *testing.T) {
	server := newOpenRouterTestServer(t, "", "", nil)
	client := newTestOpenRouterClient(server.URL)

	completion, err := client.Complete(context.Background(), counciltypes.CompletionRequest{Model: "m"})

	require.NoError(t, err)
	assert.Zero(t, completion.CostUSD)
}

func TestOpenAIClient_Complete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestOpenRouterClient(server.URL).Complete(context.Background(), counciltypes.CompletionRequest{Model: "nope"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter request failed")
}

func TestOpenAIClient_Complete_MissingKey(t *testing.T) {
	_, err := NewOpenAIClient("").Complete(context.Background(), counciltypes.CompletionRequest{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestReportedCost(t *testing.T) {
	header := func(v string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if v != "" {
			resp.Header.Set(openRouterCostHeader, v)
		}
		return resp
	}

	tests := []struct {
		name     string
		resp     *http.Response
		raw      string
		expected float64
	}{
		{"header wins", header("0.25"), `{"usage":{"cost":0.5}}`, 0.25},
		{"malformed header falls back to body", header("abc"), `{"usage":{"cost":0.5}}`, 0.5},
		{"negative header ignored", header("-1"), `{"usage":{}}`, 0},
		{"nil response", nil, `{"usage":{"cost":0.01}}`, 0.01},
		{"nothing reported", header(""), `{}`, 0},
		{"infinite header ignored", header("inf"), `{}`, 0},
		{"NaN header falls back to body", header("NaN"), `{"usage":{"cost":0.5}}`, 0.5},
		{"overflowing body cost ignored", nil, `{"usage":{"cost":1e999}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, reportedCost(tt.resp, tt.raw), 1e-12)
		})
	}
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	messages := convertMessagesToOpenAI([]counciltypes.Message{
		{Role: counciltypes.RoleSystem, Content: "sys"},
		{Role: counciltypes.RoleUser, Content: "q"},
		{Role: counciltypes.RoleAssistant, Content: "a"},
		{Role: "tool", Content: "ignored"},
	})

	require.Len(t, messages, 3)
	assert.Equal(t, openai.SystemMessage("sys"), messages[0])
	assert.Equal(t, openai.UserMessage("q"), messages[1])
	assert.Equal(t, openai.AssistantMessage("a"), messages[2])
}
