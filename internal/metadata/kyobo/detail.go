package kyobo

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/id"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// Detail fields tracked in ParseResults.
const (
	FieldLinkedData  = "linked_data"
	FieldISBN        = "isbn"
	FieldPages       = "pages"
	FieldDescription = "description"
	FieldPublisher   = "publisher"
	FieldPublishDate = "publish_date"
	FieldTOC         = "table_of_contents"
	FieldCategories  = "categories"
	FieldRating      = "rating"
	FieldCover       = "cover"
)

const (
	sourceLinkedData = "json-ld"
	maxCategoryRunes = 30
	maxPublisherRune = 50
)

var (
	isbnSelectors        = []string{"[class*=isbn]", "[id*=isbn]", ".tbl_row", ".prod_info_wrap", ".basic_info"}
	pageSelectors        = []string{".prod_info_text .page", "[class*=page_count]", "[class*=pages]", "[class*=page]"}
	pageContainers       = []string{".tbl_row", ".prod_info_wrap", ".basic_info", ".prod_detail_area", ".product_detail_area"}
	descriptionSelectors = []string{
		".intro_bottom .info_text",
		".book_intro .info_text",
		"#scrollSpyProdInfo .info_text",
		".prod_detail_area .info_text",
		".product_detail_area.book_intro .info_text",
		".info_text",
		".book_intro",
		"[class*=introduce]",
		".prod_introduction",
		"#bookIntro",
	}
	detailPublisherSelectors = []string{
		".prod_info_text.publish_date a",
		".publish_date a",
		".prod_publish a",
		`a[href*="publisher"]`,
		`a[href*="pbcm"]`,
		".publisher",
	}
	detailDateSelectors = []string{".prod_info_text.publish_date", ".publish_date", ".prod_publish .date", "[class*=publish_date]", ".date"}
	categorySelectors   = []string{
		".intro_category_list .category_list_item",
		".category_list a",
		".breadcrumb a",
		".breadcrumb li",
		".location a",
		"[class*=category] a",
		"[class*=breadcrumb] a",
	}
	ratingSelectors = []string{
		".review_klover_text",
		".prod_review_box .review_score",
		".klover_score",
		"[itemprop=ratingValue]",
		"[class*=rating]",
		"[class*=klover]",
		"[class*=score]",
	}
	portraitSelectors    = []string{".portrait_img_box img", ".prod_img_box img", ".prod_thumb_box img"}
	metaImageSelectors   = []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`, `meta[name="twitter:image:src"]`, `meta[property="twitter:image"]`}
	genericImageSelector = []string{`img[src*="/pdt/"]`, `img[data-src*="/pdt/"]`, ".prod_img img", ".img_box img", ".thumb img", "img[alt]"}
	detailTitleSelectors = []string{".prod_title", ".prod_title_box .prod_title", "h1.title", "h1"}
	detailAuthorSelector = []string{".prod_author_box .author a", ".prod_author a", ".author a", ".prod_author"}

	categoryStopwords = map[string]bool{"홈": true, "home": true, "전체": true, "도서": true, "전체보기": true}
	pageLabels        = []string{"쪽수", "페이지", "쪽"}
	dateLabels        = []string{"발행일", "출간일", "출판일", "발행", "출시일"}
)

// ParseResults records which detail fields were extracted and which
// extractor failures were swallowed.
type ParseResults struct {
	Fields  map[string]bool   `json:"fields"`
	Sources map[string]string `json:"sources,omitempty"` // winning strategy per field
	Errors  []string          `json:"errors,omitempty"`
}

func newParseResults() ParseResults {
	return ParseResults{Fields: make(map[string]bool), Sources: make(map[string]string)}
}

// SuccessRate returns the share of attempted fields that were extracted.
func (r ParseResults) SuccessRate() float64 {
	if len(r.Fields) == 0 {
		return 0
	}
	ok := 0
	for _, v := range r.Fields {
		if v {
			ok++
		}
	}
	return float64(ok) / float64(len(r.Fields))
}

// Succeeded reports whether field was extracted.
func (r ParseResults) Succeeded(field string) bool {
	return r.Fields[field]
}

// DetailParser extracts detail-page fields and merges them into a book.
type DetailParser struct {
	cfg parserConfig
}

// NewDetailParser creates a detail parser.
func NewDetailParser(opts ...ParserOption) *DetailParser {
	return &DetailParser{cfg: newParserConfig("detail-parser", DefaultEndpoints().Product+"/", opts)}
}

// extraction carries the state of one detail parse.
type extraction struct {
	book    domain.Book
	doc     *dom.Document
	ld      linkedData
	update  domain.BookUpdate
	results ParseResults

	body     string
	haveBody bool
}

func (x *extraction) bodyText() string {
	if !x.haveBody {
		x.body = x.doc.BodyText()
		x.haveBody = true
	}
	return x.body
}

// Enrich merges the fields found in a detail page into b. Individual field
// failures are recorded in the results and never returned; the error is
// non-nil only when the merged record cannot be built.
func (p *DetailParser) Enrich(b domain.Book, src string) (domain.Book, ParseResults, error) {
	doc, err := dom.Parse(src)
	if err != nil {
		return b, newParseResults(), errors.Parse(b.ID, "unreadable detail page").WithCause(err)
	}
	return p.enrich(b, doc)
}

func (p *DetailParser) enrich(b domain.Book, doc *dom.Document) (domain.Book, ParseResults, error) {
	x := &extraction{book: b, doc: doc, results: newParseResults()}

	p.run(x, FieldLinkedData, p.linkedData)
	p.run(x, FieldISBN, p.isbn)
	p.run(x, FieldPages, p.pages)
	p.run(x, FieldDescription, p.description)
	p.run(x, FieldPublisher, p.publisher)
	p.run(x, FieldPublishDate, p.publishDate)
	p.run(x, FieldTOC, p.toc)
	p.run(x, FieldCategories, p.categories)
	p.run(x, FieldRating, p.rating)
	p.run(x, FieldCover, p.cover)

	merged, err := b.Apply(x.update, p.cfg.now())
	if err != nil {
		return b, x.results, errors.Parse(b.ID, "merge detail fields").WithCause(err)
	}

	p.cfg.logger.Debug("detail parsed",
		"book_id", b.ID,
		"success_rate", x.results.SuccessRate(),
		"errors", len(x.results.Errors),
	)
	return merged, x.results, nil
}

// ParseBook builds a record from a detail page alone.
func (p *DetailParser) ParseBook(productID, src string) (domain.Book, ParseResults, error) {
	productID = strings.TrimPrefix(strings.TrimSpace(productID), "S")
	doc, err := dom.Parse(src)
	if err != nil {
		return domain.Book{}, newParseResults(), errors.Parse(productID, "unreadable detail page").WithCause(err)
	}

	ld, _ := parseLinkedData(doc)
	title, _, ok := dom.FirstOf(
		dom.NonEmpty("json-ld", func() string { return ld.Name }),
		dom.NonEmpty("selector", func() string {
			text, _ := dom.FirstText(doc.Root(), detailTitleSelectors...)
			return normalize.CleanTitle(text)
		}),
		dom.NonEmpty("og:title", func() string {
			return normalize.CleanTitle(dom.Attr(doc.Find(`meta[property="og:title"]`), "content"))
		}),
		dom.NonEmpty("title", func() string {
			return normalize.CleanTitle(dom.Text(doc.Find("title")))
		}),
	)
	if !ok {
		return domain.Book{}, newParseResults(), errors.Parse(productID, "detail page has no title")
	}

	authors := ld.Authors
	if len(authors) == 0 {
		if found, _, ok := doc.FirstMatch(detailAuthorSelector...); ok {
			var raw []string
			found.Each(func(_ int, el *goquery.Selection) {
				raw = append(raw, normalize.SplitAuthors(dom.Text(el))...)
			})
			authors = normalize.UniqueAuthors(raw)
		}
	}

	b, err := domain.NewBook(domain.BookInput{
		ID:            productID,
		Title:         title,
		Authors:       authors,
		DetailPageURL: normalize.ResolveURL(p.cfg.baseURL, "/detail/S"+productID),
	}, p.cfg.now())
	if err != nil {
		return domain.Book{}, newParseResults(), errors.Parse(productID, "invalid detail record").WithCause(err)
	}
	return p.enrich(b, doc)
}

// run executes one extractor. A returned error or a panic is recorded and
// the field is marked as failed.
func (p *DetailParser) run(x *extraction, field string, fn func(*extraction) (string, error)) {
	var source string
	err := safely(func() error {
		var err error
		source, err = fn(x)
		return err
	})
	if err != nil {
		x.results.Fields[field] = false
		x.results.Errors = append(x.results.Errors, field+": "+err.Error())
		p.cfg.logger.Debug("field extraction failed", "book_id", x.book.ID, "field", field, "error", err)
		return
	}
	x.results.Fields[field] = source != ""
	if source != "" {
		x.results.Sources[field] = source
	}
}

// linkedData seeds the update from JSON-LD. Later extractors only fill
// fields it left empty.
func (p *DetailParser) linkedData(x *extraction) (string, error) {
	ld, ok := parseLinkedData(x.doc)
	if !ok {
		return "", nil
	}
	x.ld = ld

	if ld.ISBN != "" {
		x.update.ISBN = &ld.ISBN
	}
	if ld.Pages > 0 && ld.Pages < domain.MaxPages {
		x.update.Pages = &ld.Pages
	}
	if ld.Description != "" && normalize.CheckQuality(ld.Description, domain.MaxDescriptionLength) == nil {
		x.update.Description = &ld.Description
	}
	if ld.Publisher != "" {
		x.update.Publisher = &ld.Publisher
	}
	if ld.Published != "" {
		x.update.PublishDate = &ld.Published
	}
	if u := normalize.ResolveURL(p.cfg.baseURL, ld.Image); u != "" && normalize.IsValidImageURL(u) {
		cover := normalize.OptimizeImageURL(u, p.cfg.coverWidth)
		x.update.CoverImageURL = &cover
	}
	if len(ld.Authors) > 0 && !hasKnownAuthors(x.book) {
		x.update.Authors = ld.Authors
	}
	return sourceLinkedData, nil
}

func hasKnownAuthors(b domain.Book) bool {
	for _, a := range b.Authors {
		if a != "" && a != domain.UnknownAuthor {
			return true
		}
	}
	return false
}

func (p *DetailParser) isbn(x *extraction) (string, error) {
	if x.update.ISBN != nil {
		return sourceLinkedData, nil
	}
	root := x.doc.Root()
	v, source, ok := dom.FirstOf(
		dom.NonEmpty("label", func() string {
			raw := labelValue(root, "ISBN")
			if isbn := normalize.NormalizeISBN(raw); isbn != "" {
				return isbn
			}
			return normalize.ExtractISBN("ISBN " + raw)
		}),
		dom.NonEmpty("selector", func() string {
			for _, selector := range isbnSelectors {
				var found string
				x.doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
					found = normalize.ExtractISBN(dom.Text(el))
					return found == ""
				})
				if found != "" {
					return found
				}
			}
			return ""
		}),
		dom.NonEmpty("body", func() string {
			return normalize.ExtractISBN(x.bodyText())
		}),
	)
	if !ok {
		return "", nil
	}
	x.update.ISBN = &v
	return source, nil
}

func (p *DetailParser) pages(x *extraction) (string, error) {
	if x.update.Pages != nil {
		return sourceLinkedData, nil
	}
	root := x.doc.Root()
	n, source, ok := dom.FirstOf(
		dom.Named("label", func() (int, bool) {
			return normalize.ExtractPageNumber(labelValue(root, pageLabels...))
		}),
		dom.Named("selector", func() (int, bool) {
			text, _ := dom.FirstText(root, pageSelectors...)
			return normalize.ExtractPages(text)
		}),
		dom.Named("container", func() (int, bool) {
			for _, selector := range pageContainers {
				if n, ok := normalize.ExtractPages(dom.Text(x.doc.Find(selector))); ok {
					return n, true
				}
			}
			return 0, false
		}),
		dom.Named("label-proximity", func() (int, bool) {
			return pagesNearLabel(root)
		}),
		dom.Named("body", func() (int, bool) {
			return normalize.ExtractPages(x.bodyText())
		}),
	)
	if !ok {
		return "", nil
	}
	x.update.Pages = &n
	return source, nil
}

// pagesNearLabel scans short elements mentioning a page label and reads a
// number from them or from the element that follows.
func pagesNearLabel(root *goquery.Selection) (int, bool) {
	var (
		n  int
		ok bool
	)
	dom.Find(root, "th, td, dt, dd, span, strong, em, li, p").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := dom.Text(el)
		if utf8.RuneCountInString(text) > 40 || !containsAny(text, pageLabels) {
			return true
		}
		if n, ok = normalize.ExtractPages(text); ok {
			return false
		}
		n, ok = normalize.ExtractPageNumber(dom.Text(el.Next()))
		return !ok
	})
	return n, ok
}

func (p *DetailParser) description(x *extraction) (string, error) {
	if x.update.Description != nil {
		return sourceLinkedData, nil
	}

	var rejected error
	accept := func(text string) (string, bool) {
		text = truncate(text, domain.MaxDescriptionLength)
		if err := normalize.CheckQuality(text, domain.MaxDescriptionLength); err != nil {
			rejected = err
			return "", false
		}
		return text, true
	}

	v, source, ok := dom.FirstOf(
		dom.Named("selector", func() (string, bool) {
			for _, selector := range descriptionSelectors {
				var text string
				var found bool
				x.doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
					text, found = accept(p.describe(dom.InnerHTML(el)))
					return !found
				})
				if found {
					return text, true
				}
			}
			return "", false
		}),
		dom.Named("meta", func() (string, bool) {
			for _, selector := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
				if text, ok := accept(normalize.CleanMultiline(dom.Attr(x.doc.Find(selector), "content"))); ok {
					return text, true
				}
			}
			return "", false
		}),
	)
	if !ok {
		if rejected != nil {
			return "", fmt.Errorf("no description passed quality checks: %w", rejected)
		}
		return "", nil
	}
	x.update.Description = &v
	return source, nil
}

// describe converts description markup, using full markdown when enabled.
func (p *DetailParser) describe(fragment string) string {
	if p.cfg.rich {
		if md, err := p.cfg.converter.ConvertRich(fragment); err == nil && md != "" {
			return md
		}
	}
	return p.cfg.toText(fragment)
}

func (p *DetailParser) publisher(x *extraction) (string, error) {
	if x.update.Publisher != nil {
		return sourceLinkedData, nil
	}
	root := x.doc.Root()
	valid := func(s string) string {
		s = normalize.CleanPublisher(s)
		if !normalize.HasLetter(s) || utf8.RuneCountInString(s) > maxPublisherRune {
			return ""
		}
		return s
	}
	v, source, ok := dom.FirstOf(
		dom.NonEmpty("selector", func() string {
			text, _ := dom.FirstText(root, detailPublisherSelectors...)
			return valid(text)
		}),
		dom.NonEmpty("label", func() string {
			return valid(labelValue(root, "출판사"))
		}),
		dom.NonEmpty("body", func() string {
			return valid(matchIn(publisherLabel, x.bodyText()))
		}),
	)
	if !ok {
		return "", nil
	}
	x.update.Publisher = &v
	return source, nil
}

func (p *DetailParser) publishDate(x *extraction) (string, error) {
	if x.update.PublishDate != nil {
		return sourceLinkedData, nil
	}
	root := x.doc.Root()
	v, source, ok := dom.FirstOf(
		dom.NonEmpty("selector", func() string {
			for _, selector := range detailDateSelectors {
				if d := normalize.ExtractDate(dom.Text(x.doc.Find(selector))); d != "" {
					return d
				}
			}
			return ""
		}),
		dom.NonEmpty("label", func() string {
			return normalize.ExtractDate(labelValue(root, dateLabels...))
		}),
		dom.NonEmpty("body", func() string {
			return normalize.ExtractDate(x.bodyText())
		}),
	)
	if !ok {
		return "", nil
	}
	x.update.PublishDate = &v
	return source, nil
}

func (p *DetailParser) toc(x *extraction) (string, error) {
	toc, source, ok := p.tableOfContents(x.doc)
	if !ok {
		return "", nil
	}
	x.update.TableOfContents = &toc
	return source, nil
}

// categories unions the labels of every category and breadcrumb selector.
func (p *DetailParser) categories(x *extraction) (string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(text string) {
		text = normalize.CleanText(text)
		n := utf8.RuneCountInString(text)
		if n == 0 || n > maxCategoryRunes || !normalize.HasLetter(text) {
			return
		}
		if categoryStopwords[strings.ToLower(text)] || seen[text] || len(out) >= domain.MaxCategories {
			return
		}
		seen[text] = true
		out = append(out, text)
	}

	var matched []string
	for _, selector := range categorySelectors {
		found := x.doc.Find(selector)
		if found.Length() == 0 {
			continue
		}
		matched = append(matched, selector)
		found.Each(func(_ int, el *goquery.Selection) {
			links := dom.Find(el, "a")
			if goquery.NodeName(el) != "a" && links.Length() > 0 {
				links.Each(func(_ int, a *goquery.Selection) { add(dom.Text(a)) })
				return
			}
			add(dom.Text(el))
		})
	}
	if len(out) == 0 {
		return "", nil
	}
	x.update.Categories = out
	return strings.Join(matched, ","), nil
}

func (p *DetailParser) rating(x *extraction) (string, error) {
	for _, selector := range ratingSelectors {
		var (
			value float64
			found bool
		)
		x.doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := dom.Text(el)
			if text == "" {
				text = dom.Attr(el, "content")
			}
			value, found = normalize.ExtractRating(text)
			return !found
		})
		if found {
			x.update.Rating = &value
			return selector, nil
		}
	}
	return "", nil
}

// cover prefers the portrait image, then page meta tags, then any product
// image, and finally the deterministic URL for the ISBN or product id.
func (p *DetailParser) cover(x *extraction) (string, error) {
	if x.update.CoverImageURL != nil {
		return sourceLinkedData, nil
	}
	firstImage := func(selectors []string) string {
		for _, selector := range selectors {
			var found string
			x.doc.Find(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
				found = resolveImage(img, p.cfg.baseURL)
				return found == ""
			})
			if found != "" {
				return found
			}
		}
		return ""
	}

	v, source, ok := dom.FirstOf(
		dom.NonEmpty("portrait", func() string { return firstImage(portraitSelectors) }),
		dom.NonEmpty("meta", func() string {
			for _, selector := range metaImageSelectors {
				u := normalize.ResolveURL(p.cfg.baseURL, dom.Attr(x.doc.Find(selector), "content"))
				if u != "" && normalize.IsValidImageURL(u) {
					return u
				}
			}
			return ""
		}),
		dom.NonEmpty("generic", func() string { return firstImage(genericImageSelector) }),
	)
	if ok {
		v = normalize.OptimizeImageURL(v, p.cfg.coverWidth)
		x.update.CoverImageURL = &v
		return source, nil
	}

	if x.book.CoverImageURL != "" {
		return "", nil
	}
	key := x.book.ISBN
	if x.update.ISBN != nil {
		key = *x.update.ISBN
	}
	if key == "" && !id.IsTemporary(x.book.ID) {
		key = x.book.ID
	}
	if key == "" {
		return "", nil
	}
	fallback := normalize.CoverURL(key, p.cfg.coverWidth)
	x.update.CoverImageURL = &fallback
	return "deterministic", nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}
