// Package markdown converts the small HTML subset found in book descriptions
// and tables of contents into plain text that keeps its line structure.
package markdown

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

//go:embed rules.yaml
var defaultRules []byte

var (
	// htmlTagPattern detects whether a string carries markup worth converting.
	htmlTagPattern = regexp.MustCompile(`(?i)<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|table|tr|td|blockquote)[\s>/]`)
	anyTag         = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(?:\s[^<>]*)?/?>`)
)

// Rule is one ordered rewrite.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`

	re *regexp.Regexp
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Converter applies the rewrite rules. It is safe for concurrent use.
type Converter struct {
	rules  []Rule
	policy *bluemonday.Policy
}

// New builds a converter from YAML rule data.
func New(data []byte) (*Converter, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("no rules defined")
	}
	for i := range file.Rules {
		r := &file.Rules[i]
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.re = re
	}
	return &Converter{rules: file.Rules, policy: newPolicy()}, nil
}

// Default returns the converter built from the embedded rules.
var Default = sync.OnceValue(func() *Converter {
	c, err := New(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("markdown: embedded rules: %v", err))
	}
	return c
})

// newPolicy keeps only the structural elements the rules understand.
// Scripts, styles and their content are dropped.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"br", "p", "div", "span", "li", "ul", "ol",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"b", "strong", "i", "em", "u", "blockquote",
		"table", "thead", "tbody", "tr", "td", "th",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowElements("a")
	p.RequireParseableURLs(true)
	return p
}

// Rules returns the names of the configured rules in application order.
func (c *Converter) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Convert turns markup into text. <br> and block closes become newlines,
// paragraphs are separated by a blank line, entities are decoded and
// whitespace is collapsed within lines. Text without tags keeps its own
// newlines.
func (c *Converter) Convert(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	if !anyTag.MatchString(src) {
		return normalize.CleanMultiline(html.UnescapeString(src))
	}
	out := c.policy.Sanitize(src)
	for _, r := range c.rules {
		out = r.re.ReplaceAllLiteralString(out, r.Replace)
	}
	return normalize.CleanMultiline(html.UnescapeString(out))
}

// ConvertRich converts markup to full Markdown, keeping emphasis, links and
// list markers. Input without markup is returned trimmed.
func (c *Converter) ConvertRich(src string) (string, error) {
	if src == "" || !htmlTagPattern.MatchString(src) {
		return strings.TrimSpace(src), nil
	}
	md, err := htmltomarkdown.ConvertString(c.policy.Sanitize(src))
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return normalize.CleanMultiline(md), nil
}

// ContainsHTML reports whether s appears to contain markup.
func ContainsHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// Convert runs the default converter.
func Convert(src string) string {
	return Default().Convert(src)
}
