package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimdesk/internal/model"
)

func TestParseClaims_CodeFence(t *testing.T) {
	claims, err := ParseClaims("```json\n{\"claims\": [{\"name\": \" Bob \", \"claim\": \"Y\"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []model.ClaimPayload{{Name: "Bob", Claim: "Y"}}, claims)
}

func TestParseClaims_Empty(t *testing.T) {
	claims, err := ParseClaims(`{"claims": []}`)
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(Config{Provider: "gemini"})
	assert.Error(t, err)
}

func TestConfigFromModel(t *testing.T) {
	cfg := model.DefaultConfig().Extract
	assert.Empty(t, ConfigFromModel(cfg).Provider, "disabled by default")

	cfg.Enabled = true
	assert.Empty(t, ConfigFromModel(cfg).Provider, "no key, no provider")

	cfg.APIKey = "sk-test"
	cfg.Timeout = 0
	c := ConfigFromModel(cfg)
	assert.Equal(t, "openai", c.Provider)
	assert.Equal(t, "gpt-4o-mini", c.Model)
	assert.Equal(t, 60, c.Timeout)
}
