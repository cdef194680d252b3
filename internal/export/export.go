// Package export renders published results for a target.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	md "github.com/nao1215/markdown"

	"github.com/ppiankov/claimdesk/internal/model"
)

// ConsistencyLabels maps verdicts to their display labels
var ConsistencyLabels = map[string]string{
	"hoch":    "✅ Belegt",
	"mittel":  "⚠️ Teilweise belegt",
	"niedrig": "❌ Nicht belegt / Irreführend",
	"unklar":  "❓ Unklar / Nicht überprüfbar",
}

// Label returns the display label of a consistency verdict
func Label(consistency string) string {
	if l, ok := ConsistencyLabels[strings.ToLower(strings.TrimSpace(consistency))]; ok {
		return l
	}
	return consistency
}

// SpeakerGroup holds one speaker's results in id order
type SpeakerGroup struct {
	Speaker string
	Results []model.PublishedResult
}

// GroupBySpeaker groups results by speaker. With an order only the named
// speakers are kept, in that order; otherwise speakers sort by name.
func GroupBySpeaker(results []model.PublishedResult, order []string) []SpeakerGroup {
	byID := append([]model.PublishedResult(nil), results...)
	sort.SliceStable(byID, func(i, j int) bool { return byID[i].ID < byID[j].ID })

	grouped := make(map[string][]model.PublishedResult)
	for _, r := range byID {
		grouped[r.Speaker] = append(grouped[r.Speaker], r)
	}

	var speakers []string
	if len(order) > 0 {
		for _, s := range order {
			s = strings.TrimSpace(s)
			if _, ok := grouped[s]; ok {
				speakers = append(speakers, s)
			}
		}
	} else {
		for s := range grouped {
			speakers = append(speakers, s)
		}
		sort.Strings(speakers)
	}

	groups := make([]SpeakerGroup, 0, len(speakers))
	for _, s := range speakers {
		groups = append(groups, SpeakerGroup{Speaker: s, Results: grouped[s]})
	}
	return groups
}

// WriteMarkdown renders groups as a Markdown document
func WriteMarkdown(w io.Writer, target string, groups []SpeakerGroup, now time.Time) error {
	total := 0
	for _, g := range groups {
		total += len(g.Results)
	}

	doc := md.NewMarkdown(w)
	doc.H1("Fact-Check: " + target).PlainText("")
	doc.PlainTextf("Exportiert am %s · %d Fact-Checks", now.Format("02. January 2006"), total).PlainText("")
	doc.HorizontalRule().PlainText("")

	for _, g := range groups {
		doc.H2(g.Speaker).PlainText("")
		for i, r := range g.Results {
			doc.H3(fmt.Sprintf("%d. %s", i+1, r.Claim)).PlainText("")
			doc.PlainText(md.Bold("Bewertung:") + " " + Label(r.Consistency)).PlainText("")
			if r.Reasoning != "" {
				doc.PlainText(r.Reasoning).PlainText("")
			}
			if sources := formatSources(r.Sources); len(sources) > 0 {
				doc.PlainText(md.Bold("Quellen:"))
				doc.BulletList(sources...).PlainText("")
			}
			doc.HorizontalRule().PlainText("")
		}
	}

	if err := doc.Build(); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

// formatSources renders each source as a Markdown list item body. Sources
// are plain strings or objects with a title and a url.
func formatSources(sources []any) []string {
	var out []string
	for _, src := range sources {
		switch v := src.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			title := firstString(v, "title", "name")
			url := firstString(v, "url", "link")
			switch {
			case url != "" && title != "":
				out = append(out, md.Link(title, url))
			case url != "":
				out = append(out, url)
			case title != "":
				out = append(out, title)
			}
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

type jsonExport struct {
	Speakers   []string                `json:"speakers"`
	FactChecks []model.PublishedResult `json:"fact_checks"`
}

// WriteJSON writes the speakers and their results as indented JSON.
// speakers is the configured speaker list and is written as given, with
// or without results; when empty the grouped speakers are listed.
func WriteJSON(w io.Writer, groups []SpeakerGroup, speakers []string) error {
	out := jsonExport{Speakers: []string{}, FactChecks: []model.PublishedResult{}}
	for _, g := range groups {
		if len(speakers) == 0 {
			out.Speakers = append(out.Speakers, g.Speaker)
		}
		out.FactChecks = append(out.FactChecks, g.Results...)
	}
	for _, s := range speakers {
		if s = strings.TrimSpace(s); s != "" {
			out.Speakers = append(out.Speakers, s)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
