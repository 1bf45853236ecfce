package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// blockElements start a new line when their text is flattened.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tbody": true, "td": true, "th": true, "thead": true, "tr": true, "ul": true,
}

// skipped elements never contribute text.
var skipped = map[string]bool{"script": true, "style": true, "noscript": true, "template": true, "svg": true}

// BlockText flattens s to text with a newline at every block boundary and
// <br>, then collapses whitespace within each line.
func BlockText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeBlockText(&b, n)
	}
	return normalize.CleanMultiline(b.String())
}

func writeBlockText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipped[n.Data] {
			return
		}
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeBlockText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// Lines returns the non-empty lines of BlockText(s).
func Lines(s *goquery.Selection) []string {
	var out []string
	for line := range strings.SplitSeq(BlockText(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
