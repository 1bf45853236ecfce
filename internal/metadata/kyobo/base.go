// Package kyobo scrapes book listings and detail pages from Kyobo Book Centre.
//
// The site has no public API and its markup changes often, so every field is
// located through an ordered cascade of strategies. A field that cannot be
// found is left empty; only a page that yields no record at all is an error.
package kyobo

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/id"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/markdown"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// parserConfig holds the settings shared by the page parsers.
type parserConfig struct {
	logger     *slog.Logger
	now        func() time.Time
	coverWidth int
	baseURL    string
	newID      id.Generator
	converter  *markdown.Converter
	rich       bool
}

// ParserOption customizes a parser.
type ParserOption func(*parserConfig)

// WithLogger sets the parser logger.
func WithLogger(l *slog.Logger) ParserOption {
	return func(c *parserConfig) { c.logger = l }
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) ParserOption {
	return func(c *parserConfig) { c.now = now }
}

// WithCoverWidth sets the pixel width requested from the image proxy.
func WithCoverWidth(w int) ParserOption {
	return func(c *parserConfig) {
		if w > 0 {
			c.coverWidth = w
		}
	}
}

// WithBaseURL sets the URL relative links are resolved against.
func WithBaseURL(u string) ParserOption {
	return func(c *parserConfig) { c.baseURL = u }
}

// WithIDGenerator sets the generator for temporary listing ids.
func WithIDGenerator(g id.Generator) ParserOption {
	return func(c *parserConfig) { c.newID = g }
}

// WithConverter replaces the HTML to text converter.
func WithConverter(conv *markdown.Converter) ParserOption {
	return func(c *parserConfig) { c.converter = conv }
}

// WithRichDescriptions converts descriptions with the full markdown converter.
func WithRichDescriptions(enabled bool) ParserOption {
	return func(c *parserConfig) { c.rich = enabled }
}

func newParserConfig(component, baseURL string, opts []ParserOption) parserConfig {
	c := parserConfig{
		now:        time.Now,
		coverWidth: normalize.DefaultCoverWidth,
		baseURL:    baseURL,
		newID:      id.Temporary,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.logger = logger.Component(c.logger, component)
	if c.converter == nil {
		c.converter = markdown.Default()
	}
	return c
}

// toText converts a fragment of inner HTML into line-preserving text.
func (c parserConfig) toText(fragment string) string {
	return c.converter.Convert(fragment)
}

// safely runs fn and turns a panic into an error, so one broken extractor
// cannot take down the rest of the page.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// labelValue returns the text of the value cell paired with the first label
// cell whose text contains one of labels. It understands th/td rows, dt/dd
// lists, and inline label elements followed by a value sibling.
func labelValue(root *goquery.Selection, labels ...string) string {
	var value string
	dom.Find(root, "th, dt, span.tit, span.title, strong, em, .label").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		text := dom.Text(cell)
		if text == "" || len([]rune(text)) > 20 || !containsAny(text, labels) {
			return true
		}
		var next *goquery.Selection
		switch goquery.NodeName(cell) {
		case "th":
			next = cell.NextFiltered("td")
		case "dt":
			next = cell.NextFiltered("dd")
		default:
			next = cell.Next()
		}
		if v := dom.Text(next); v != "" {
			value = v
			return false
		}
		return true
	})
	return value
}

// labelPattern matches "label : value" inside free text. The value stops at a
// line break or a middle-dot separator.
func labelPattern(labels ...string) *regexp.Regexp {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)\s*[:\-]?\s*([^\n·|]{1,60})`)
}

// matchIn returns the first submatch of re in text.
func matchIn(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// resolveImage picks an image URL from the usual eager and lazy-load
// attributes of img, preferring the largest srcset entry over src.
func resolveImage(img *goquery.Selection, base string) string {
	candidates := []string{
		lastSrcsetEntry(dom.Attr(img, "srcset", "data-srcset")),
		dom.Attr(img, "src"),
		dom.Attr(img, "data-src"),
		dom.Attr(img, "data-original"),
		dom.Attr(img, "data-lazy-src"),
		dom.Attr(img, "data-lazy"),
	}
	for _, c := range candidates {
		if u := normalize.ResolveURL(base, c); u != "" && normalize.IsValidImageURL(u) {
			return u
		}
	}
	return ""
}

// lastSrcsetEntry returns the URL of the last, and by convention largest,
// srcset candidate.
func lastSrcsetEntry(srcset string) string {
	parts := strings.Split(srcset, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if fields := strings.Fields(parts[i]); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
