package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimdesk/internal/model"
)

var sample = []model.PublishedResult{
	{ID: 3, Speaker: "Bob", Claim: "Y", Consistency: "niedrig", Reasoning: "Falsch."},
	{ID: 1, Speaker: "Anna", Claim: "X", Consistency: "hoch", Reasoning: "Statistik.",
		Sources: []any{"https://a.example", map[string]any{"title": "Amt", "url": "https://b.example"}}},
	{ID: 2, Speaker: "Anna", Claim: "Z", Consistency: "weird"},
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "✅ Belegt", Label("hoch"))
	assert.Equal(t, "⚠️ Teilweise belegt", Label(" Mittel "))
	assert.Equal(t, "❓ Unklar / Nicht überprüfbar", Label("unklar"))
	assert.Equal(t, "weird", Label("weird"))
}

func TestGroupBySpeaker(t *testing.T) {
	groups := GroupBySpeaker(sample, nil)
	require.Len(t, groups, 2)
	assert.Equal(t, "Anna", groups[0].Speaker)
	require.Len(t, groups[0].Results, 2)
	assert.EqualValues(t, 1, groups[0].Results[0].ID)
	assert.Equal(t, "Bob", groups[1].Speaker)

	ordered := GroupBySpeaker(sample, []string{"Bob", "Nobody"})
	require.Len(t, ordered, 1)
	assert.Equal(t, "Bob", ordered[0].Speaker)
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WriteMarkdown(&buf, "ep1", GroupBySpeaker(sample, nil), now))

	out := buf.String()
	for _, line := range []string{
		"# Fact-Check: ep1",
		"Exportiert am 02. March 2026 · 3 Fact-Checks",
		"## Anna",
		"### 1. X",
		"**Bewertung:** ✅ Belegt",
		"Statistik.",
		"**Quellen:**",
		"- https://a.example",
		"- [Amt](https://b.example)",
		"### 2. Z",
		"**Bewertung:** weird",
		"## Bob",
		"**Bewertung:** ❌ Nicht belegt / Irreführend",
		"---",
	} {
		assert.Contains(t, lines(out), line)
	}

	// Speakers and their claims keep the grouped order
	order := []string{"## Anna", "### 1. X", "- [Amt](https://b.example)", "### 2. Z", "## Bob", "### 1. Y"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		require.Greater(t, idx, last, marker)
		last = idx
	}
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		out = append(out, strings.TrimRight(l, " \r"))
	}
	return out
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, GroupBySpeaker(sample, nil), nil))

	var out struct {
		Speakers   []string         `json:"speakers"`
		FactChecks []map[string]any `json:"fact_checks"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, []string{"Anna", "Bob"}, out.Speakers)
	assert.Len(t, out.FactChecks, 3)
	assert.Equal(t, "X", out.FactChecks[0]["behauptung"])
}

func TestWriteJSON_ConfiguredSpeakers(t *testing.T) {
	order := []string{"Bob", "Cleo"}
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, GroupBySpeaker(sample, order), order))

	var out struct {
		Speakers   []string         `json:"speakers"`
		FactChecks []map[string]any `json:"fact_checks"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, []string{"Bob", "Cleo"}, out.Speakers, "speakers without results are still listed")
	require.Len(t, out.FactChecks, 1)
	assert.Equal(t, "Y", out.FactChecks[0]["behauptung"])
}
