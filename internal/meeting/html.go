package meeting

import (
	"strings"

	"golang.org/x/net/html"
)

// HasMarkup reports whether body looks like an HTML document.
func HasMarkup(body string) bool {
	return strings.Contains(strings.ToLower(body), "<html")
}

// blockElements end the current line when they open or close.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "ul": true, "ol": true, "hr": true, "blockquote": true,
}

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"head": true, "script": true, "style": true, "title": true,
}

// HTMLToText renders the visible text of an HTML document, one line per
// block element, with runs of blank lines collapsed.
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// Source line breaks are layout, not content.
			b.WriteByte(' ')
			b.WriteString(strings.Join(strings.Fields(n.Data), " "))
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
			if blockElements[n.Data] {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(root)

	return tidyLines(b.String()), nil
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
