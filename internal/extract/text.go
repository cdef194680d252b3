package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/claimdesk/internal/model"
)

// Page is the readable part of an HTML article
type Page struct {
	Title string
	Text  string
}

// ParseHTML extracts the title and visible text of an HTML document
func ParseHTML(htmlContent string) (Page, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return Page{}, err
	}
	return Page{
		Title: findTitle(doc),
		Text:  extractVisibleText(doc),
	}, nil
}

// extractVisibleText extracts text nodes from HTML, skipping scripts/styles.
// Block elements end a paragraph.
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "nav", "footer":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
					buf.WriteString(" ")
				}
				buf.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && isBlockElement(n.Data) && buf.Len() > 0 &&
			!strings.HasSuffix(buf.String(), "\n") {
			buf.WriteString("\n")
		}
	}

	walk(n)
	return strings.TrimSpace(buf.String())
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "article", "section", "tr":
		return true
	}
	return false
}

// findTitle returns the document title, falling back to the first h1
func findTitle(doc *html.Node) string {
	var title, h1 string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "title" && title == "":
				title = textContent(n)
			case n.Data == "h1" && h1 == "":
				h1 = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if title != "" {
		return title
	}
	return h1
}

func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// dedupeClaims removes duplicate claims of the same speaker
func dedupeClaims(claims []model.ClaimPayload) []model.ClaimPayload {
	seen := make(map[string]bool)
	var unique []model.ClaimPayload

	for _, claim := range claims {
		text := strings.TrimSpace(claim.Claim)
		if text == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(claim.Name)) + "\x00" + strings.ToLower(text)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, model.ClaimPayload{Name: strings.TrimSpace(claim.Name), Claim: text})
		}
	}

	return unique
}
