package sources

import (
	"strings"

	"golang.org/x/net/html"
)

// htmlToText reduces an HTML fragment to its visible text with collapsed
// whitespace. Unparseable input is returned with whitespace collapsed.
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// quoteKeywords builds an OR query of quoted phrases, skipping blanks.
func quoteKeywords(keywords []string) string {
	var quoted []string
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, `"`, ""))
		if k != "" {
			quoted = append(quoted, `"`+k+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}
