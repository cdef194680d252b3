package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimdesk/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "":
		// No provider configured - return nil (extraction disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai)", config.Provider)
	}
}

// ConfigFromModel converts the extraction settings to llm.Config.
// Extraction that is disabled or has no key yields a disabled config.
func ConfigFromModel(cfg model.ExtractConfig) Config {
	c := DefaultConfig()
	if !cfg.Enabled || cfg.APIKey == "" {
		return c
	}
	c.Provider = "openai"
	c.Model = cfg.Model
	c.APIKey = cfg.APIKey
	c.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.MaxTokens > 0 {
		c.MaxTokens = cfg.MaxTokens
	}
	return c
}
