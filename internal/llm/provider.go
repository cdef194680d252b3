package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/claimdesk/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// ExtractClaims pulls verifiable factual claims out of an article
	ExtractClaims(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ExtractRequest contains the article to extract claims from
type ExtractRequest struct {
	Text     string
	Headline string

	// PublicationDate anchors relative time references in the article.
	// Empty means the current month.
	PublicationDate string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// ExtractResponse contains the extracted claims
type ExtractResponse struct {
	Claims     []model.ClaimPayload
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai" or "" (disabled)
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for OpenAI-compatible endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   60,
		MaxTokens: 2000,
	}
}

const systemPrompt = `You extract verifiable factual claims from news articles.

Rules:
1. Only extract claims that can be checked against public sources: numbers, dates, events, attributed statements.
2. Skip opinions, predictions and rhetorical questions.
3. Decontextualize every claim: resolve pronouns and relative dates so the claim stands on its own.
4. Attribute each claim to the person who made it. Use the full name. If the article itself asserts it, use the publication's name.
5. Keep the claim in the language of the article.
6. The article was published in %s. Interpret relative time references accordingly.

Answer with JSON only, in the form:
{"claims": [{"name": "<speaker>", "claim": "<claim>"}]}`

// BuildSystemPrompt returns the extraction instructions for an article
// published at publicationDate
func BuildSystemPrompt(publicationDate string) string {
	return fmt.Sprintf(systemPrompt, publicationDate)
}

// BuildUserMessage formats the article for the model
func BuildUserMessage(headline, text string) string {
	return fmt.Sprintf("Headline: %s\n\nArticle: %s", headline, text)
}

// ParseClaims decodes the model's JSON answer. Code fences around the JSON
// are tolerated; claims without text are dropped.
func ParseClaims(content string) ([]model.ClaimPayload, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var out struct {
		Claims []model.ClaimPayload `json:"claims"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	claims := make([]model.ClaimPayload, 0, len(out.Claims))
	for _, c := range out.Claims {
		c.Name = strings.TrimSpace(c.Name)
		c.Claim = strings.TrimSpace(c.Claim)
		if c.Claim == "" {
			continue
		}
		claims = append(claims, c)
	}
	return claims, nil
}
