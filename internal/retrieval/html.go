package retrieval

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var footnotePattern = regexp.MustCompile(`\[(?:\d+|[a-z]|citation needed|note \d+)\]`)

// extractText extracts the text content of a node
func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.Data {
			case "script", "style", "noscript", "sup":
				continue
			}
		}
		buf.WriteString(extractText(c))
	}
	return buf.String()
}

// hasClass checks if a node has a specific CSS class
func hasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(getAttribute(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

// getAttribute gets an attribute value from a node
func getAttribute(n *html.Node, attrKey string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// findFirst finds the first node matching a predicate
func findFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	if predicate(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, predicate); found != nil {
			return found
		}
	}
	return nil
}

// articleParagraphs returns the cleaned text of each body paragraph of a
// Wikipedia article, stopping at the reference sections
func articleParagraphs(doc *html.Node) []string {
	content := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			(hasClass(n, "mw-parser-output") || getAttribute(n, "id") == "mw-content-text")
	})
	if content == nil {
		content = doc
	}

	var paragraphs []string
	done := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if done {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h2":
				heading := strings.ToLower(strings.TrimSpace(extractText(n)))
				if isBackMatter(heading) {
					done = true
					return
				}
			case "table", "style", "script", "figure":
				// Infoboxes and navboxes are structured data, not prose
				return
			case "p":
				text := cleanParagraph(extractText(n))
				if text != "" {
					paragraphs = append(paragraphs, text)
				}
				return
			}
			if hasClass(n, "reflist") || hasClass(n, "navbox") || hasClass(n, "hatnote") {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(content)
	return paragraphs
}

func isBackMatter(heading string) bool {
	for _, prefix := range []string{"references", "notes", "see also", "external links", "further reading", "bibliography"} {
		if strings.HasPrefix(heading, prefix) {
			return true
		}
	}
	return false
}

func cleanParagraph(text string) string {
	text = footnotePattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
