// Package normalize provides pure functions that clean scraped text and pull
// structured values (ISBN, dates, ratings, page counts, URLs) out of it.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	spaceRun          = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
	blankLineRun      = regexp.MustCompile(`\n{3,}`)
	bracketPrefix     = regexp.MustCompile(`^\s*[\[【〔(][^\]】〕)]{1,20}[\]】〕)]\s*`)
	siteSuffix        = regexp.MustCompile(`\s*[|\-–]\s*(?:교보문고|KYOBO|kyobobook).*$`)
	authorRoleSuffix  = regexp.MustCompile(`\s+(?:저자\(글\)|저자|저|지음|글|그림|글·그림|번역|옮김|역|엮음|편|편저|편역|감수|공저|외(?:\s*\d+\s*명)?)$`)
	authorParenRole   = regexp.MustCompile(`\s*\((?:지은이|옮긴이|저자|역자|엮은이|그린이)\)\s*`)
	authorSeparators  = regexp.MustCompile(`[,;|·]`)
	publisherPrefixes = regexp.MustCompile(`^(?:출판사|발행처|펴낸곳)\s*[:\-]?\s*`)
	corporateMarkers  = []string{"(주)", "㈜", "주식회사", "(株)", "(유)", "유한회사"}
)

// invisible runes that survive entity decoding and break comparisons.
var invisible = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "", "\u00ad", "")

// MaxAuthors caps how many authors are kept from a single listing.
const MaxAuthors = 5

// CleanText decodes entities, strips tags, NFC-normalizes and collapses all
// whitespace, including newlines, to single spaces.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
	s = invisible.Replace(norm.NFC.String(s))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// CleanMultiline collapses whitespace within each line but keeps line
// structure. Runs of blank lines become a single blank line.
func CleanMultiline(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisible.Replace(norm.NFC.String(s))

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n ")
}

// CleanTitle removes store decorations such as "[국내도서]" prefixes and
// "| 교보문고" suffixes from a title.
func CleanTitle(s string) string {
	s = CleanText(s)
	for {
		trimmed := bracketPrefix.ReplaceAllString(s, "")
		if trimmed == s || trimmed == "" {
			break
		}
		s = trimmed
	}
	s = siteSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CleanAuthor strips role markers ("저", "옮김", "(지은이)") from a single author name.
func CleanAuthor(s string) string {
	s = CleanText(s)
	s = authorParenRole.ReplaceAllString(s, " ")
	for {
		trimmed := strings.TrimSpace(authorRoleSuffix.ReplaceAllString(s, ""))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.TrimSpace(s)
}

// SplitAuthors splits free text on the separators the store uses between
// names and returns at most MaxAuthors distinct cleaned names.
func SplitAuthors(s string) []string {
	return UniqueAuthors(authorSeparators.Split(s, -1))
}

// UniqueAuthors cleans each name, drops empties and duplicates and caps the list.
func UniqueAuthors(names []string) []string {
	out := make([]string, 0, min(len(names), MaxAuthors))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = CleanAuthor(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == MaxAuthors {
			break
		}
	}
	return out
}

// CleanPublisher removes label prefixes and corporate designations.
func CleanPublisher(s string) string {
	s = publisherPrefixes.ReplaceAllString(CleanText(s), "")
	for _, marker := range corporateMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	return CleanText(s)
}

// HasLetter reports whether s contains at least one alphabetic or Hangul rune.
func HasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
