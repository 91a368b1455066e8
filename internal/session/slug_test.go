package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicouncil/pkg/counciltypes"
)

type slugClient struct {
	text string
	err  error
	req  counciltypes.CompletionRequest
}

func (c *slugClient) Complete(_ context.Context, req counciltypes.CompletionRequest) (counciltypes.Completion, error) {
	c.req = req
	return counciltypes.Completion{Text: c.text}, c.err
}

func TestSanitizeSlug(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"Remote Work Policy", "remote_work_policy"},
		{"  `eu-ai-act_review`\n", "euaiact_review"},
		{"__Already_Clean__", "already_clean"},
		{"!!!", FallbackSlug},
		{"", FallbackSlug},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"Café   crème", "caf_crme"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeSlug(tt.raw))
		})
	}
}

func TestGenerateSlug(t *testing.T) {
	client := &slugClient{text: "Market Entry Strategy"}
	advisors := []counciltypes.AdvisorDescriptor{{Name: "A", ModelID: "m1"}, {Name: "B", ModelID: "m2"}}

	slug := GenerateSlug(context.Background(), client, advisors, "make a slug", "How do we enter the market?")

	assert.Equal(t, "market_entry_strategy", slug)
	assert.Equal(t, "m1", client.req.Model)
	require.NotNil(t, client.req.Temperature)
	assert.InDelta(t, 0.1, *client.req.Temperature, 1e-12)
	assert.Equal(t, 20, client.req.MaxTokens)
	assert.Equal(t, "make a slug", client.req.Messages[0].Content)
	assert.Equal(t, "How do we enter the market?", client.req.Messages[1].Content)
}

func TestGenerateSlug_Fallbacks(t *testing.T) {
	assert.Equal(t, FallbackSlug, GenerateSlug(context.Background(), &slugClient{}, nil, "", "p"))

	failing := &slugClient{err: errors.New("rate limited")}
	advisors := []counciltypes.AdvisorDescriptor{{Name: "A", ModelID: "m1"}}
	assert.Equal(t, FallbackSlug, GenerateSlug(context.Background(), failing, advisors, "", "p"))
}

func TestOutputFilename(t *testing.T) {
	date := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "20250102_market_entry.md", OutputFilename(date, "market_entry"))
}
