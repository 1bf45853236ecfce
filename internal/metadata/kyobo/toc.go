package kyobo

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/markdown"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

const (
	tocKeyword       = "목차"
	maxTOCHeading    = 20
	maxTOCSiblings   = 50
	maxTOCAncestors  = 3
	minTOCLineLength = 2
	maxTOCLineLength = 300
	minBodyTOC       = 50
	maxBodyTOC       = 5000
)

var (
	tocChapter    = regexp.MustCompile(`(?i)^(?:제?\s*\d+\s*[장절부편]|chapter\s*\d+|part\s*\d+|\d+\.(?:\s|$))`)
	tocSubheading = regexp.MustCompile(`^(?:\d+\.\d+|\d+-\d+|[가-힣]\.\s|\(\d+\)|\d+\))`)
	tocBullet     = regexp.MustCompile(`^[-*•·▪■□◦▶]\s*`)
)

const tocHeadingSelector = "h1, h2, h3, h4, h5, h6, .title_heading, .tit, .title, strong, b, dt, th"

var (
	tocItemSelectors      = []string{".book_contents_item", ".toc_item", "li.contents_item"}
	tocBoxSelectors       = []string{".info_text", ".book_contents_list", ".auto_overflow_contents", ".content_box", ".box_detail_content"}
	tocContainerSelectors = []string{".book_contents_list", ".book_contents", "#book_contents", ".prod_toc", ".toc", ".table_of_contents", "[class*=contents_list]"}
	tocSweepSelectors     = []string{".toc_list", "[id*=toc]", "[class*=toc]", "[id*=contents]", "[class*=contents]"}

	// otherSections are heading words that end the contents section.
	otherSections = []string{"저자", "작가", "출판사", "출판", "책소개", "책 소개", "리뷰", "추천", "서평", "본문"}
	// bodyTOCEnd are the section words that end a contents block in flattened
	// page text. Blank lines separate parts of the contents and do not end it.
	bodyTOCEnd = []string{"저자", "출판", "ISBN", "리뷰", "소개"}
)

// FormatTOC normalizes raw contents markup or text into one entry per line.
// Chapter lines stay flush left, subheadings are indented two spaces, and
// duplicate or implausibly short or long lines are dropped.
func FormatTOC(raw string) string {
	return formatTOC(markdown.Default(), raw)
}

func formatTOC(conv *markdown.Converter, raw string) string {
	text := conv.Convert(raw)

	var out []string
	seen := make(map[string]bool)
	size := 0
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(tocBullet.ReplaceAllString(normalize.CleanText(line), ""))
		if line == "" || line == tocKeyword {
			continue
		}
		n := utf8.RuneCountInString(line)
		if n < minTOCLineLength || n > maxTOCLineLength || seen[line] {
			continue
		}
		seen[line] = true

		if !tocChapter.MatchString(line) && tocSubheading.MatchString(line) {
			line = "  " + line
		}
		// Keep whole lines within the record cap.
		if size+utf8.RuneCountInString(line)+1 > domain.MaxTOCLength {
			break
		}
		size += utf8.RuneCountInString(line) + 1
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// tableOfContents runs the contents cascade and returns the formatted text
// and the winning strategy.
func (p *DetailParser) tableOfContents(doc *dom.Document) (string, string, bool) {
	headings := tocHeadings(doc)
	format := func(raw string) (string, bool) {
		toc := formatTOC(p.cfg.converter, raw)
		return toc, toc != ""
	}

	return dom.FirstOf(
		dom.Named("heading-sibling", func() (string, bool) {
			for _, h := range headings {
				if toc, ok := format(p.contentsFromBox(h.Next())); ok {
					return toc, true
				}
			}
			return "", false
		}),
		dom.Named("parent-sibling", func() (string, bool) {
			for _, h := range headings {
				if toc, ok := format(p.contentsFromBox(h.Parent().Next())); ok {
					return toc, true
				}
			}
			return "", false
		}),
		dom.Named("sibling-walk", func() (string, bool) {
			for _, h := range headings {
				if toc, ok := format(siblingWalk(h)); ok {
					return toc, true
				}
			}
			return "", false
		}),
		dom.Named("list-aggregation", func() (string, bool) {
			for _, h := range headings {
				if toc, ok := format(ancestorLists(h)); ok {
					return toc, true
				}
			}
			return "", false
		}),
		dom.Named("content-selectors", func() (string, bool) {
			found, _, ok := doc.FirstMatch(tocContainerSelectors...)
			if !ok {
				return "", false
			}
			var parts []string
			found.Each(func(_ int, el *goquery.Selection) {
				parts = append(parts, p.contentsFromBox(el))
			})
			return format(strings.Join(parts, "\n"))
		}),
		dom.Named("body-text", func() (string, bool) {
			return format(tocFromText(doc.BodyText()))
		}),
		dom.Named("selector-sweep", func() (string, bool) {
			return format(sweepContents(doc))
		}),
	)
}

// tocHeadings returns short elements whose text names the contents section.
func tocHeadings(doc *dom.Document) []*goquery.Selection {
	var out []*goquery.Selection
	doc.Find(tocHeadingSelector).Each(func(_ int, el *goquery.Selection) {
		text := dom.Text(el)
		if strings.Contains(text, tocKeyword) && utf8.RuneCountInString(text) <= maxTOCHeading {
			out = append(out, el)
		}
	})
	return out
}

// contentsFromBox reads a contents box: dedicated item elements first, then
// a known content wrapper, then the box markup itself.
func (p *DetailParser) contentsFromBox(box *goquery.Selection) string {
	if box.Length() == 0 {
		return ""
	}
	box = box.First()
	if items, _, ok := dom.FirstMatch(box, tocItemSelectors...); ok {
		var parts []string
		items.Each(func(_ int, item *goquery.Selection) {
			parts = append(parts, p.cfg.toText(dom.InnerHTML(item)))
		})
		return strings.Join(parts, "\n")
	}
	if inner, _, ok := dom.FirstMatch(box, tocBoxSelectors...); ok {
		return p.cfg.toText(dom.InnerHTML(inner))
	}
	return p.cfg.toText(dom.InnerHTML(box))
}

// siblingWalk collects the text of the siblings after h until a heading
// that starts another section. A heading with no siblings walks from its parent.
func siblingWalk(h *goquery.Selection) string {
	start := h
	if h.Next().Length() == 0 {
		start = h.Parent()
	}
	var parts []string
	count := 0
	for sib := start.Next(); sib.Length() > 0 && count < maxTOCSiblings; sib = sib.Next() {
		count++
		if startsOtherSection(sib) {
			break
		}
		if text := dom.BlockText(sib); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func startsOtherSection(el *goquery.Selection) bool {
	heading := el
	if !dom.Is(el, tocHeadingSelector) {
		heading = dom.Find(el, "h1, h2, h3, h4, h5, h6, .title_heading").First()
	}
	if heading.Length() == 0 {
		return false
	}
	text := dom.Text(heading)
	if utf8.RuneCountInString(text) > maxTOCHeading || strings.Contains(text, tocKeyword) {
		return false
	}
	return containsAny(text, otherSections)
}

// ancestorLists aggregates list items from the nearest ancestor of h that
// holds a list, ignoring lists that contain h itself.
func ancestorLists(h *goquery.Selection) string {
	for _, anc := range dom.Ancestors(h, maxTOCAncestors) {
		var lines []string
		dom.Find(anc, "ul, ol").Each(func(_ int, list *goquery.Selection) {
			if dom.Contains(list, h) {
				return
			}
			dom.Find(list, "li").Each(func(_ int, li *goquery.Selection) {
				if text := dom.Text(li); text != "" {
					lines = append(lines, text)
				}
			})
		})
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}
	return ""
}

// tocFromText finds "목차" on a line of its own in flattened page text and
// returns what follows, up to the first section word after at least
// minBodyTOC characters. Blocks longer than maxBodyTOC are rejected.
func tocFromText(text string) string {
	for rest := text; ; {
		i := strings.Index(rest, tocKeyword)
		if i < 0 {
			return ""
		}
		after := strings.TrimLeft(rest[i+len(tocKeyword):], " \t")
		rest = rest[i+len(tocKeyword):]
		if !strings.HasPrefix(after, "\n") {
			continue
		}
		if block := leadingBlock([]rune(after[1:])); block != "" {
			return block
		}
	}
}

func leadingBlock(r []rune) string {
	for pos := minBodyTOC; pos <= maxBodyTOC && pos < len(r); pos++ {
		tail := string(r[pos:min(len(r), pos+8)])
		for _, end := range bodyTOCEnd {
			if strings.HasPrefix(tail, end) {
				return strings.TrimRight(string(r[:pos]), " \t\n")
			}
		}
	}
	return ""
}

// sweepContents collects list and paragraph lines from any element that
// looks like a contents container.
func sweepContents(doc *dom.Document) string {
	var lines []string
	seen := make(map[string]bool)
	for _, selector := range tocSweepSelectors {
		doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
			dom.Find(el, "li, p").Each(func(_ int, item *goquery.Selection) {
				for _, line := range dom.Lines(item) {
					n := utf8.RuneCountInString(line)
					if n < minTOCLineLength || n > maxTOCLineLength || seen[line] {
						continue
					}
					seen[line] = true
					lines = append(lines, line)
				}
			})
		})
		if len(lines) > 0 {
			break
		}
	}
	return strings.Join(lines, "\n")
}
