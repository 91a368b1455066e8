package session

import (
	"context"
	"regexp"
	"strings"
	"time"

	"aicouncil/internal/logger"
	"aicouncil/pkg/counciltypes"
)

// FallbackSlug names sessions whose slug could not be generated.
const FallbackSlug = "untitled_session"

const maxSlugLength = 50

var (
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9_]`)
)

// GenerateSlug asks the first advisor for a short filename slug describing prompt.
// Any failure yields FallbackSlug.
func GenerateSlug(ctx context.Context, client counciltypes.LLMClient, advisors []counciltypes.AdvisorDescriptor, systemPrompt, prompt string) string {
	if len(advisors) == 0 {
		return FallbackSlug
	}

	temperature := 0.1
	completion, err := client.Complete(ctx, counciltypes.CompletionRequest{
		Model: advisors[0].ModelID,
		Messages: []counciltypes.Message{
			{Role: counciltypes.RoleSystem, Content: systemPrompt},
			{Role: counciltypes.RoleUser, Content: prompt},
		},
		Temperature: &temperature,
		MaxTokens:   20,
	})
	if err != nil {
		logger.Warn("Could not generate filename slug, falling back to default", "model", advisors[0].ModelID, "error", err)
		return FallbackSlug
	}

	return SanitizeSlug(completion.Text)
}

// SanitizeSlug lowercases raw, turns whitespace runs into underscores, drops everything
// outside [a-z0-9_] and caps the length.
func SanitizeSlug(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = slugWhitespace.ReplaceAllString(slug, "_")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = strings.Trim(slug, "_")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	if slug == "" {
		return FallbackSlug
	}
	return slug
}

// OutputFilename returns the transcript file name for a session started at date.
func OutputFilename(date time.Time, slug string) string {
	return date.Format("20060102") + "_" + slug + ".md"
}
