package kyobo

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/id"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// Result limits.
const (
	DefaultMaxResults = 20
	MaxResults        = 100
)

const (
	searchSource     = "search"
	searchBatchSize  = 10
	minItemTextBytes = 10
	minContainerText = 20
	maxContainerText = 1000
	maxAncestorDepth = 5
	maxTitleLength   = 200
)

// listingSelectors locate listing items, most specific first.
var listingSelectors = []string{
	"ul.prod_list > li.prod_item",
	"li.prod_item",
	".prod_item",
	"#shopData_list > li",
	".search_result_list > li",
	"ul.list_search_result > li",
	".prod_list > li",
	"[role=list] > [role=listitem]",
	"ul[role=list] > li",
	"[class*=prod_item]",
	"[class*=product_item]",
	"[class*=book_item]",
	"li[class*=item]",
	"div[class*=item]",
}

// detailAnchor matches any link to a product page.
const detailAnchor = `a[href*="/detail/"], a[href*="barcode="]`

// detailLinkSelectors rank product links by how reliably they carry an id.
var detailLinkSelectors = []string{
	`a[href*="/detail/S"]`,
	`a[href*="/detail/"]`,
	`a[href*="product.kyobobook.co.kr"]`,
	`a[href*="barcode="]`,
}

var (
	containerKeywords = []string{"prod", "item", "book", "product", "goods", "result"}
	packageKeywords   = []string{"패키지", "세트", "전집", "시리즈", "묶음"}

	titleSelectors     = []string{".prod_name", "[id^=cmdtyNm]", ".prod_info .title", ".book_name", ".title", ".tit"}
	authorSelectors    = []string{".prod_author_group", ".prod_author", ".author", ".writer", "[class*=author]"}
	publisherSelectors = []string{".prod_publish a", ".prod_publish .text", ".publisher", "[class*=publisher]", ".pub"}
	dateSelectors      = []string{".prod_publish .date", ".date", "[class*=date]"}
	coverSelectors     = []string{".prod_thumb_box img", ".prod_img img", ".img_box img", "img[class*=thumb]", "img"}

	noResultMarkers   = []string{"검색결과가 없습니다", "검색 결과가 없습니다", "검색된 상품이 없습니다"}
	noResultSelectors = []string{".no_result", ".result_none", ".no_data"}

	publisherLabel = labelPattern("출판사")
)

// titleBlacklist holds tokens that appear in listing links but are never titles.
var titleBlacklist = map[string]bool{
	"종이책": true, "전자책": true, "ebook": true, "e북": true, "세트": true, "패키지": true,
	"sam": true, "오디오북": true, "바로구매": true, "장바구니": true, "구매하기": true,
	"미리보기": true, "리뷰": true, "품절": true, "절판": true, "예약판매": true, "소득공제": true,
	"더보기": true, "상세보기": true,
}

// SearchMetrics describes one listing parse.
type SearchMetrics struct {
	Strategy   string   `json:"strategy"`   // winning candidate strategy
	Candidates int      `json:"candidates"` // items the strategy found
	Excluded   int      `json:"excluded"`   // filtered out before parsing
	Duplicates int      `json:"duplicates"` // parsed items whose id was already emitted
	Parsed     int      `json:"parsed"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// SearchParser maps a search results page to listing-level books.
type SearchParser struct {
	cfg parserConfig
}

// NewSearchParser creates a listing parser.
func NewSearchParser(opts ...ParserOption) *SearchParser {
	return &SearchParser{cfg: newParserConfig("search-parser", DefaultEndpoints().Product+"/", opts)}
}

// ParseBooks returns up to maxResults books in page order. A page with no
// recognizable listing items is a parse error unless it says there were no
// results. maxResults <= 0 means DefaultMaxResults.
func (p *SearchParser) ParseBooks(src string, maxResults int) ([]domain.Book, SearchMetrics, error) {
	var m SearchMetrics
	switch {
	case maxResults <= 0:
		maxResults = DefaultMaxResults
	case maxResults > MaxResults:
		maxResults = MaxResults
	}

	doc, err := dom.Parse(src)
	if err != nil {
		return nil, m, errors.Parse(searchSource, "unreadable listing page").WithCause(err)
	}

	candidates, strategy := findCandidates(doc)
	m.Strategy = strategy
	m.Candidates = len(candidates)
	if len(candidates) == 0 {
		if hasNoResultMarker(doc) {
			p.cfg.logger.Debug("search returned no results")
			return []domain.Book{}, m, nil
		}
		return nil, m, errors.Parse(searchSource, "no listing items found")
	}

	items := make([]*goquery.Selection, 0, len(candidates))
	for _, c := range candidates {
		if reason := excludeReason(c); reason != "" {
			m.Excluded++
			p.cfg.logger.Debug("listing item excluded", "reason", reason)
			continue
		}
		items = append(items, c)
	}

	books := make([]domain.Book, 0, min(len(items), maxResults))
	seen := make(map[string]bool, len(items))
	index := 0
	for batch := range slices.Chunk(items, searchBatchSize) {
		for _, item := range batch {
			index++
			if len(books) >= maxResults {
				break
			}
			b, err := p.parseItem(item)
			if err != nil {
				m.Failed++
				m.Errors = append(m.Errors, fmt.Sprintf("item %d: %v", index, err))
				p.cfg.logger.Debug("listing item skipped", "index", index, "error", err)
				continue
			}
			if seen[b.ID] {
				m.Duplicates++
				continue
			}
			seen[b.ID] = true
			books = append(books, b)
			m.Parsed++
		}
		if len(books) >= maxResults {
			break
		}
	}

	p.cfg.logger.Debug("listing parsed",
		"strategy", m.Strategy,
		"candidates", m.Candidates,
		"excluded", m.Excluded,
		"parsed", m.Parsed,
		"failed", m.Failed,
	)
	return books, m, nil
}

// findCandidates runs the candidate cascade. A selector only wins when at
// least one of its matches links to a product, so generic item selectors
// cannot capture navigation menus.
func findCandidates(doc *dom.Document) ([]*goquery.Selection, string) {
	for _, selector := range listingSelectors {
		found := doc.Find(selector)
		if found.Length() == 0 {
			continue
		}
		items := collapseNested(selections(found))
		if slices.ContainsFunc(items, hasDetailLink) {
			return items, selector
		}
	}
	if items := anchorContainers(doc); len(items) > 0 {
		return items, "anchor-ancestor"
	}
	return nil, ""
}

// anchorContainers walks up from each product link looking for a container
// that looks like a listing item.
func anchorContainers(doc *dom.Document) []*goquery.Selection {
	var out []*goquery.Selection
	seen := make(map[*html.Node]bool)
	doc.Find(detailAnchor).Each(func(_ int, a *goquery.Selection) {
		for _, anc := range dom.Ancestors(a, maxAncestorDepth) {
			if !containsAny(dom.ClassAndID(anc), containerKeywords) {
				continue
			}
			n := utf8.RuneCountInString(dom.Text(anc))
			if n < minContainerText || n > maxContainerText {
				continue
			}
			if node := anc.Get(0); !seen[node] {
				seen[node] = true
				out = append(out, anc)
			}
			return
		}
	})
	return collapseNested(out)
}

func selections(s *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		out = append(out, el)
	})
	return out
}

// collapseNested drops candidates that sit inside another candidate.
func collapseNested(items []*goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, len(items))
	for i, item := range items {
		nested := false
		for j, other := range items {
			if i != j && dom.Contains(other, item) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, item)
		}
	}
	return out
}

func hasDetailLink(item *goquery.Selection) bool {
	return dom.Find(item, detailAnchor).Length() > 0
}

// excludeReason reports why item must not become a record, or "".
// Package products are dropped whole.
func excludeReason(item *goquery.Selection) string {
	text := dom.Text(item)
	switch {
	case dom.IsHidden(item):
		return "hidden"
	case !hasDetailLink(item):
		return "no detail link"
	case len(text) < minItemTextBytes:
		return "too little text"
	case containsAny(text, packageKeywords):
		return "package product"
	}
	return ""
}

func hasNoResultMarker(doc *dom.Document) bool {
	if _, _, ok := doc.FirstMatch(noResultSelectors...); ok {
		return true
	}
	return containsAny(dom.Text(doc.Body()), noResultMarkers)
}

// parseItem builds one book. A panic inside extraction is returned as an error.
func (p *SearchParser) parseItem(item *goquery.Selection) (domain.Book, error) {
	var b domain.Book
	err := safely(func() error {
		var err error
		b, err = p.buildBook(item)
		return err
	})
	return b, err
}

func (p *SearchParser) buildBook(item *goquery.Selection) (domain.Book, error) {
	href, productID := productLink(item)
	title := listingTitle(item)
	if title == "" {
		return domain.Book{}, fmt.Errorf("no title")
	}

	if productID == "" {
		tmp, err := p.cfg.newID()
		if err != nil {
			return domain.Book{}, fmt.Errorf("no product id and no temporary id: %w", err)
		}
		productID = tmp
	}

	publisher := listingPublisher(item)
	in := domain.BookInput{
		ID:            productID,
		Title:         title,
		Authors:       listingAuthors(item, publisher),
		Publisher:     publisher,
		PublishDate:   listingDate(item),
		CoverImageURL: p.listingCover(item, productID),
		DetailPageURL: normalize.ResolveURL(p.cfg.baseURL, href),
	}
	return domain.NewBook(in, p.cfg.now())
}

// productLink returns the best product link and the id it carries. When no
// link carries an id the first product link is returned with an empty id.
func productLink(item *goquery.Selection) (href, productID string) {
	for _, selector := range detailLinkSelectors {
		dom.Find(item, selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h := dom.Attr(a, "href")
			if h == "" {
				return true
			}
			if href == "" {
				href = h
			}
			if pid := normalize.ExtractProductID(h); pid != "" {
				href, productID = h, pid
				return false
			}
			return true
		})
		if productID != "" {
			return href, productID
		}
	}
	return href, ""
}

// listingTitle prefers link title attributes, then dedicated title
// elements, then link text, then image alt text. Within a tier the longest
// valid candidate wins.
func listingTitle(item *goquery.Selection) string {
	links := dom.Find(item, detailAnchor)
	tiers := []func() []string{
		func() []string {
			var out []string
			links.Each(func(_ int, a *goquery.Selection) {
				out = append(out, dom.Attr(a, "title"), dom.Attr(a, "aria-label"))
			})
			return out
		},
		func() []string {
			var out []string
			for _, selector := range titleSelectors {
				dom.Find(item, selector).Each(func(_ int, el *goquery.Selection) {
					out = append(out, dom.Text(el))
				})
			}
			return out
		},
		func() []string {
			var out []string
			links.Each(func(_ int, a *goquery.Selection) {
				out = append(out, dom.Text(a))
			})
			return out
		},
		func() []string {
			var out []string
			dom.Find(item, "img[alt]").Each(func(_ int, img *goquery.Selection) {
				out = append(out, dom.Attr(img, "alt"))
			})
			return out
		},
	}
	for _, tier := range tiers {
		if t := longestTitle(tier()); t != "" {
			return t
		}
	}
	return ""
}

func longestTitle(candidates []string) string {
	best := ""
	for _, c := range candidates {
		c = normalize.CleanTitle(c)
		if validTitle(c) && utf8.RuneCountInString(c) > utf8.RuneCountInString(best) {
			best = c
		}
	}
	return best
}

func validTitle(t string) bool {
	n := utf8.RuneCountInString(t)
	if n < 2 || n > maxTitleLength {
		return false
	}
	if titleBlacklist[strings.ToLower(t)] {
		return false
	}
	return normalize.HasLetter(t)
}

// listingAuthors reads the author container. Linked names win over split
// text; split parts that are the publisher or a date are dropped.
func listingAuthors(item *goquery.Selection, publisher string) []string {
	container, _, ok := dom.FirstMatch(item, authorSelectors...)
	if !ok {
		return nil
	}
	container = container.First()

	var names []string
	dom.Find(container, "a").Each(func(_ int, a *goquery.Selection) {
		names = append(names, dom.Text(a))
	})
	if len(names) == 0 {
		names = normalize.SplitAuthors(dom.Text(container))
	}

	kept := names[:0]
	for _, name := range names {
		switch {
		case normalize.ExtractDate(name) != "":
		case publisher != "" && normalize.CleanPublisher(name) == publisher:
		case !normalize.HasLetter(name):
		default:
			kept = append(kept, name)
		}
	}
	return normalize.UniqueAuthors(kept)
}

func listingPublisher(item *goquery.Selection) string {
	v, _, _ := dom.FirstOf(
		dom.NonEmpty("selector", func() string {
			text, _ := dom.FirstText(item, publisherSelectors...)
			return normalize.CleanPublisher(text)
		}),
		dom.NonEmpty("label", func() string {
			return normalize.CleanPublisher(matchIn(publisherLabel, dom.BlockText(item)))
		}),
	)
	return v
}

func listingDate(item *goquery.Selection) string {
	v, _, _ := dom.FirstOf(
		dom.NonEmpty("selector", func() string {
			text, _ := dom.FirstText(item, dateSelectors...)
			return normalize.ExtractDate(text)
		}),
		dom.NonEmpty("item-text", func() string {
			return normalize.ExtractDate(dom.Text(item))
		}),
	)
	return v
}

// listingCover tries image attributes, then the store's lazy-load data
// attributes, then the deterministic URL for the product id.
func (p *SearchParser) listingCover(item *goquery.Selection, productID string) string {
	v, _, ok := dom.FirstOf(
		dom.NonEmpty("img", func() string {
			for _, selector := range coverSelectors {
				var found string
				dom.Find(item, selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
					found = resolveImage(img, p.cfg.baseURL)
					return found == ""
				})
				if found != "" {
					return normalize.OptimizeImageURL(found, p.cfg.coverWidth)
				}
			}
			return ""
		}),
		dom.NonEmpty("kbbfn", func() string {
			var barcode string
			dom.Find(item, "img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
				barcode = kbbfnBarcode(img)
				return barcode == ""
			})
			return normalize.CoverURL(barcode, p.cfg.coverWidth)
		}),
	)
	if ok {
		return v
	}
	if id.IsTemporary(productID) {
		return ""
	}
	return normalize.CoverURL(productID, p.cfg.coverWidth)
}

// kbbfnBarcode reads the barcode from the store's lazy-load attributes,
// e.g. data-kbbfn-bid="9788932473901".
func kbbfnBarcode(img *goquery.Selection) string {
	for _, a := range dom.AttrsWithPrefix(img, "data-kbbfn") {
		key := strings.TrimPrefix(a.Key, "data-kbbfn-")
		switch key {
		case "bid", "barcode", "pid", "id":
			if v := strings.TrimPrefix(strings.TrimSpace(a.Val), "S"); v != "" {
				return v
			}
		}
	}
	return ""
}
