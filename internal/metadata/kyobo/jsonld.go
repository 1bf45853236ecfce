package kyobo

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// linkedData is the subset of a schema.org Book or Product node we use.
type linkedData struct {
	Name        string
	ISBN        string
	Image       string
	Description string
	Publisher   string
	Authors     []string
	Published   string
	Pages       int
}

func (ld linkedData) empty() bool {
	return ld.Name == "" && ld.ISBN == "" && ld.Image == "" && ld.Description == "" &&
		ld.Publisher == "" && len(ld.Authors) == 0 && ld.Published == "" && ld.Pages == 0
}

// parseLinkedData merges every Book or Product node found in the page's
// JSON-LD blocks. Earlier nodes win per field.
func parseLinkedData(doc *dom.Document) (linkedData, bool) {
	var out linkedData
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		v, ok := decodeLenient(raw)
		if !ok {
			return
		}
		for _, node := range bookNodes(v) {
			out = out.merge(fromNode(node))
		}
	})
	return out, !out.empty()
}

// decodeLenient accepts strict JSON and falls back to JSON5 for the
// trailing commas and single quotes some pages emit.
func decodeLenient(raw string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}
	if err := json5.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}
	return nil, false
}

// bookNodes flattens arrays and @graph containers and keeps Book/Product nodes.
func bookNodes(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = append(out, bookNodes(item)...)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			out = append(out, bookNodes(graph)...)
		}
		if isBookType(t["@type"]) {
			out = append(out, t)
		}
	}
	return out
}

func isBookType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Book" || t == "Product" || strings.HasSuffix(t, "/Book") || strings.HasSuffix(t, "/Product")
	case []any:
		for _, item := range t {
			if isBookType(item) {
				return true
			}
		}
	}
	return false
}

func fromNode(node map[string]any) linkedData {
	ld := linkedData{
		Name:        normalize.CleanTitle(stringValue(node["name"])),
		Image:       urlValue(node["image"]),
		Description: normalize.CleanMultiline(stringValue(node["description"])),
		Published:   normalize.ExtractDate(stringValue(node["datePublished"])),
		Authors:     names(node["author"]),
	}
	for _, key := range []string{"isbn", "gtin13", "gtin", "sku"} {
		if isbn := normalize.NormalizeISBN(stringValue(node[key])); isbn != "" {
			ld.ISBN = isbn
			break
		}
	}
	for _, key := range []string{"publisher", "brand"} {
		if pub := normalize.CleanPublisher(nameValue(node[key])); pub != "" {
			ld.Publisher = pub
			break
		}
	}
	if n, ok := normalize.ExtractPageNumber(stringValue(node["numberOfPages"])); ok {
		ld.Pages = n
	}
	return ld
}

func (ld linkedData) merge(other linkedData) linkedData {
	if ld.Name == "" {
		ld.Name = other.Name
	}
	if ld.ISBN == "" {
		ld.ISBN = other.ISBN
	}
	if ld.Image == "" {
		ld.Image = other.Image
	}
	if ld.Description == "" {
		ld.Description = other.Description
	}
	if ld.Publisher == "" {
		ld.Publisher = other.Publisher
	}
	if len(ld.Authors) == 0 {
		ld.Authors = other.Authors
	}
	if ld.Published == "" {
		ld.Published = other.Published
	}
	if ld.Pages == 0 {
		ld.Pages = other.Pages
	}
	return ld
}

// stringValue renders scalars as strings and returns "" for anything else.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// nameValue reads a string or an object's "name".
func nameValue(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return stringValue(t["name"])
	case []any:
		for _, item := range t {
			if s := nameValue(item); s != "" {
				return s
			}
		}
		return ""
	}
	return stringValue(v)
}

// urlValue reads a string, an ImageObject's "url", or the first of a list.
func urlValue(v any) string {
	switch t := v.(type) {
	case map[string]any:
		if u := stringValue(t["url"]); u != "" {
			return u
		}
		return stringValue(t["contentUrl"])
	case []any:
		for _, item := range t {
			if u := urlValue(item); u != "" {
				return u
			}
		}
		return ""
	}
	return stringValue(v)
}

// names reads author values that may be a string, an object, or a list of either.
func names(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := nameValue(item); s != "" {
				raw = append(raw, s)
			}
		}
	case string:
		raw = normalize.SplitAuthors(t)
	default:
		if s := nameValue(v); s != "" {
			raw = append(raw, s)
		}
	}
	return normalize.UniqueAuthors(raw)
}
