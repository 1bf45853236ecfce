// Package dom is a thin selector-query layer over goquery. Invalid selectors
// match nothing instead of panicking, so selector lists can be edited freely.
package dom

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse parses an HTML document or fragment.
func Parse(src string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc}, nil
}

// Root returns the selection wrapping the whole document.
func (d *Document) Root() *goquery.Selection {
	return d.doc.Selection
}

// Body returns the body element, or the root when the input had none.
func (d *Document) Body() *goquery.Selection {
	if body := d.doc.Find("body"); body.Length() > 0 {
		return body.First()
	}
	return d.doc.Selection
}

// Find runs selector against the whole document.
func (d *Document) Find(selector string) *goquery.Selection {
	return Find(d.doc.Selection, selector)
}

// FirstMatch returns the matches of the first selector that finds anything.
func (d *Document) FirstMatch(selectors ...string) (*goquery.Selection, string, bool) {
	return FirstMatch(d.doc.Selection, selectors...)
}

// BodyText returns the block-aware text of the body.
func (d *Document) BodyText() string {
	return BlockText(d.Body())
}

// matchers caches compiled selectors. Invalid selectors are cached as nil.
var matchers sync.Map

func compile(selector string) goquery.Matcher {
	if m, ok := matchers.Load(selector); ok {
		matcher, _ := m.(goquery.Matcher)
		return matcher
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		matchers.Store(selector, nil)
		return nil
	}
	matchers.Store(selector, sel)
	return sel
}

// Find runs selector against the descendants of s. An invalid selector
// returns an empty selection.
func Find(s *goquery.Selection, selector string) *goquery.Selection {
	m := compile(selector)
	if m == nil {
		return s.FindNodes()
	}
	return s.FindMatcher(m)
}

// Is reports whether any element in s matches selector.
func Is(s *goquery.Selection, selector string) bool {
	m := compile(selector)
	if m == nil {
		return false
	}
	return s.IsMatcher(m)
}

// FirstMatch tries selectors in order and returns the matches of the first
// one that finds at least one element, together with that selector.
func FirstMatch(s *goquery.Selection, selectors ...string) (*goquery.Selection, string, bool) {
	for _, selector := range selectors {
		if found := Find(s, selector); found.Length() > 0 {
			return found, selector, true
		}
	}
	return s.FindNodes(), "", false
}

// FirstText returns the cleaned text of the first element matched by any of
// the selectors that has non-empty text.
func FirstText(s *goquery.Selection, selectors ...string) (string, string) {
	for _, selector := range selectors {
		var text string
		Find(s, selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text = Text(el)
			return text == ""
		})
		if text != "" {
			return text, selector
		}
	}
	return "", ""
}

// Text returns the whitespace-collapsed text of s.
func Text(s *goquery.Selection) string {
	return normalize.CleanText(s.Text())
}

// InnerHTML returns the markup inside the first element of s.
func InnerHTML(s *goquery.Selection) string {
	h, err := s.First().Html()
	if err != nil {
		return ""
	}
	return h
}

// Attr returns the first non-empty value among the named attributes of the
// first element in s.
func Attr(s *goquery.Selection, names ...string) string {
	first := s.First()
	for _, name := range names {
		if v, ok := first.Attr(name); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// AttrsWithPrefix returns the attributes of the first element in s whose name
// starts with prefix, in document order.
func AttrsWithPrefix(s *goquery.Selection, prefix string) []html.Attribute {
	if s.Length() == 0 {
		return nil
	}
	var out []html.Attribute
	for _, a := range s.Get(0).Attr {
		if strings.HasPrefix(a.Key, prefix) {
			out = append(out, a)
		}
	}
	return out
}

// Ancestors returns up to max element ancestors of the first element of s,
// nearest first.
func Ancestors(s *goquery.Selection, max int) []*goquery.Selection {
	var out []*goquery.Selection
	for p := s.First().Parent(); p.Length() > 0 && len(out) < max; p = p.Parent() {
		if goquery.NodeName(p) == "html" {
			break
		}
		out = append(out, p)
	}
	return out
}

// ClassAndID returns the lower-cased class and id attributes joined by a space.
func ClassAndID(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	return strings.ToLower(strings.TrimSpace(class + " " + id))
}

// Contains reports whether inner is a descendant of outer.
func Contains(outer, inner *goquery.Selection) bool {
	if outer.Length() == 0 || inner.Length() == 0 {
		return false
	}
	o, n := outer.Get(0), inner.Get(0)
	for p := n.Parent; p != nil; p = p.Parent {
		if p == o {
			return true
		}
	}
	return false
}

// IsHidden reports whether the first element of s, or an ancestor, is hidden
// through the hidden attribute, aria-hidden, an inline display/visibility
// style, or a "hidden" class.
func IsHidden(s *goquery.Selection) bool {
	for el := s.First(); el.Length() > 0; el = el.Parent() {
		if hiddenElement(el) {
			return true
		}
	}
	return false
}

func hiddenElement(el *goquery.Selection) bool {
	if _, ok := el.Attr("hidden"); ok {
		return true
	}
	if v, _ := el.Attr("aria-hidden"); v == "true" {
		return true
	}
	if style, ok := el.Attr("style"); ok {
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	if class, ok := el.Attr("class"); ok {
		for _, c := range strings.Fields(class) {
			if c == "hidden" || c == "blind" || c == "sr-only" {
				return true
			}
		}
	}
	return false
}
