package kyobo

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

const (
	maxTOCCandidates = 4
	minDiscoveredTOC = 10
	tocAccept        = "application/json, text/html;q=0.9, */*;q=0.8"
)

var (
	// scriptTOCKey finds the assignment of a contents value inside inline scripts.
	scriptTOCKey = regexp.MustCompile(`["']?\b(book_contents_list|bookContentsList|tocContent|tableOfContents|toc)\b["']?\s*[:=]\s*`)

	tocURLKeywords = []string{"toc", "contents"}
	// excludedHosts are telemetry, ad and static-asset hosts whose URLs can
	// mention contents without serving them.
	excludedHosts = []string{
		normalize.CoverHost,
		"image.", "img.", "static.", "cdn", "log.", "stat.", "analytics", "doubleclick", "facebook", "google", "criteo",
	}
	assetExtensions = map[string]bool{
		".js": true, ".css": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".svg": true, ".webp": true, ".ico": true, ".woff": true, ".woff2": true, ".map": true,
	}
	// jsonTOCKeys are read in order from JSON objects returned by contents endpoints.
	jsonTOCKeys = []string{"book_contents_list", "bookContentsList", "tocContent", "tableOfContents", "toc", "contents", "content", "data", "result"}
	// jsonEntryKeys name the text of one contents entry.
	jsonEntryKeys = []string{"title", "tocTitle", "name", "text", "content", "contents"}
)

// TOCDiscoverer recovers a table of contents that the detail page loads
// asynchronously. It looks for contents embedded in inline scripts, then
// fetches up to four candidate endpoints found in the page plus the
// contents API.
type TOCDiscoverer struct {
	client    *Client
	endpoints Endpoints
	logger    *slog.Logger
}

// NewTOCDiscoverer creates a discoverer that fetches through client.
func NewTOCDiscoverer(client *Client, log *slog.Logger) *TOCDiscoverer {
	return &TOCDiscoverer{
		client:    client,
		endpoints: client.Endpoints(),
		logger:    logger.Component(log, "toc-discovery"),
	}
}

// Discover returns the formatted contents for productID and the place they
// were found. Every failure is logged and swallowed; ok is false when
// nothing usable turned up.
func (d *TOCDiscoverer) Discover(ctx context.Context, productID, detailURL, pageHTML string) (toc, source string, ok bool) {
	doc, err := dom.Parse(pageHTML)
	if err != nil {
		d.logger.Debug("detail page unreadable for toc discovery", "book_id", productID, "error", err)
		doc = nil
	}

	if doc != nil {
		if toc := scriptContents(doc); toc != "" {
			return toc, "inline-script", true
		}
	}

	for _, candidate := range d.Candidates(productID, detailURL, doc) {
		if err := ctx.Err(); err != nil {
			return "", "", false
		}
		body, err := d.client.Get(ctx, candidate, WithReferer(detailURL), WithAccept(tocAccept))
		if err != nil {
			d.logger.Debug("toc candidate failed", "book_id", productID, "url", candidate, "error", err)
			continue
		}
		if toc := parseTOCResponse(body); toc != "" {
			d.logger.Debug("toc discovered", "book_id", productID, "url", candidate)
			return toc, candidate, true
		}
	}
	return "", "", false
}

// Candidates lists the contents endpoints to try: same-site URLs referenced
// by the page whose path mentions contents, then the contents API. At most
// four are returned.
func (d *TOCDiscoverer) Candidates(productID, detailURL string, doc *dom.Document) []string {
	site := d.endpoints.siteDomain()
	base := detailURL
	if base == "" {
		base = d.endpoints.DetailURL(productID)
	}

	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		u := canonicalURL(raw)
		if u == "" || seen[u] || len(out) >= maxTOCCandidates {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	if doc != nil {
		doc.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			for _, ref := range referencedURLs(el) {
				if u := normalize.ResolveURL(base, ref); u != "" && isTOCEndpoint(u, site) {
					add(u)
				}
			}
			// Leave room for the API endpoint.
			return len(out) < maxTOCCandidates-1
		})
	}
	add(d.endpoints.TOCURL(productID))
	return out
}

// referencedURLs returns href, src and data-* attribute values of el that
// look like URLs.
func referencedURLs(el *goquery.Selection) []string {
	var refs []string
	for _, name := range []string{"href", "src"} {
		if v, ok := el.Attr(name); ok && v != "" {
			refs = append(refs, v)
		}
	}
	for _, a := range dom.AttrsWithPrefix(el, "data-") {
		if strings.Contains(a.Val, "/") {
			refs = append(refs, a.Val)
		}
	}
	return refs
}

func isTOCEndpoint(raw, site string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !normalize.SameSite(host, site) || containsAny(host, excludedHosts) {
		return false
	}
	if assetExtensions[strings.ToLower(path.Ext(u.Path))] {
		return false
	}
	lower := strings.ToLower(u.Path + "?" + u.RawQuery)
	return containsAny(lower, tocURLKeywords)
}

// canonicalURL normalizes a URL so trivially different references dedupe.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return purell.NormalizeURL(u, purell.FlagsSafe|purell.FlagRemoveFragment|purell.FlagSortQuery)
}

// scriptContents extracts contents assigned to a known key inside any inline script.
func scriptContents(doc *dom.Document) string {
	var toc string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src, ok := s.Attr("src"); ok && src != "" {
			return true
		}
		code := s.Text()
		for _, loc := range scriptTOCKey.FindAllStringIndex(code, -1) {
			raw := balancedValue(code[loc[1]:])
			if raw == "" {
				continue
			}
			v, ok := decodeLenient(raw)
			if !ok {
				continue
			}
			if toc = nonTrivialTOC(jsonTOCText(v)); toc != "" {
				return false
			}
		}
		return true
	})
	return toc
}

// balancedValue returns the JSON array, object or string literal at the
// start of s, matching brackets outside string literals.
func balancedValue(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if s == "" {
		return ""
	}
	open := s[0]
	switch open {
	case '"', '\'':
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '\\':
				i++
			case open:
				return s[:i+1]
			}
		}
		return ""
	case '[', '{':
	default:
		return ""
	}

	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// parseTOCResponse reads a contents endpoint body as a JSON array, a JSON
// object or an HTML fragment, in that order.
func parseTOCResponse(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		if v, ok := decodeLenient(trimmed); ok {
			return nonTrivialTOC(jsonTOCText(v))
		}
	}

	doc, err := dom.Parse(trimmed)
	if err != nil {
		return ""
	}
	if box, _, ok := doc.FirstMatch(tocContainerSelectors...); ok {
		if toc := nonTrivialTOC(dom.InnerHTML(box)); toc != "" {
			return toc
		}
	}
	return nonTrivialTOC(dom.InnerHTML(doc.Body()))
}

// jsonTOCText flattens a decoded contents value into raw lines.
func jsonTOCText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var lines []string
		for _, item := range t {
			if s := jsonTOCText(item); strings.TrimSpace(s) != "" {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		for _, key := range jsonTOCKeys {
			if inner, ok := t[key]; ok {
				if s := jsonTOCText(inner); strings.TrimSpace(s) != "" {
					return s
				}
			}
		}
		for _, key := range jsonEntryKeys {
			if s := stringValue(t[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

// nonTrivialTOC formats raw and returns it only if it is long enough to be
// a real table of contents.
func nonTrivialTOC(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	toc := FormatTOC(raw)
	if utf8.RuneCountInString(toc) < minDiscoveredTOC {
		return ""
	}
	return toc
}
