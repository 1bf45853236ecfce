package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	isbnLabeled = regexp.MustCompile(`(?i)ISBN(?:-1[03])?[:\s]*([0-9][0-9Xx\- ]{8,20})`)
	isbnBare    = regexp.MustCompile(`\b97[89][0-9\-]{10,14}\b`)
	datePattern = regexp.MustCompile(`(\d{4})\s*[년./\-]\s*(\d{1,2})\s*[월./\-]\s*(\d{1,2})\s*일?`)
	ratingValue = regexp.MustCompile(`(\d+\.?\d*)\s*점?`)
	pageCount   = regexp.MustCompile(`(?i)(\d[\d,]*)\s*(?:쪽|페이지|pages?\b|p\b)`)
	firstNumber = regexp.MustCompile(`\d[\d,]*`)
	productID   = regexp.MustCompile(`/detail/S?(\d+)`)
	barcodeArg  = regexp.MustCompile(`(?i)[?&](?:barcode|ejkGb|pid)=S?(\d{6,})`)
)

// NormalizeISBN keeps digits and a check-digit X. It returns "" unless the
// result has exactly 10 or 13 characters.
func NormalizeISBN(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X' || r == 'x':
			b.WriteByte('X')
		}
	}
	out := b.String()
	if len(out) != 10 && len(out) != 13 {
		return ""
	}
	if i := strings.IndexByte(out, 'X'); i >= 0 && i != len(out)-1 {
		return ""
	}
	return out
}

// ExtractISBN finds an ISBN in free text, preferring an "ISBN" label over a
// bare 978/979 number.
func ExtractISBN(text string) string {
	for _, m := range isbnLabeled.FindAllStringSubmatch(text, -1) {
		if isbn := labeledISBN(m[1]); isbn != "" {
			return isbn
		}
	}
	for _, m := range isbnBare.FindAllString(text, -1) {
		if isbn := NormalizeISBN(m); isbn != "" {
			return isbn
		}
	}
	return ""
}

// labeledISBN joins space separated groups until they form an ISBN. Digits
// after a complete ISBN-13 are ignored; an ISBN-10 is used only when no
// 978/979 ISBN-13 follows.
func labeledISBN(s string) string {
	var acc, short string
	for _, group := range strings.Fields(s) {
		acc += group
		switch isbn := NormalizeISBN(acc); {
		case len(isbn) == 13 && (strings.HasPrefix(isbn, "978") || strings.HasPrefix(isbn, "979")):
			return isbn
		case len(isbn) == 10 && short == "":
			short = isbn
		}
	}
	return short
}

// ExtractDate finds a YYYY[년./-]MM[월./-]DD[일] date and returns it as
// zero-padded YYYY-MM-DD, or "" when none is present or it is out of range.
func ExtractDate(text string) string {
	for _, m := range datePattern.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if year < 1000 || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	}
	return ""
}

// ExtractRating reads the first usable score in text and maps it onto a
// 10-point scale. Values up to 5 are assumed to be on a 5-point scale and
// doubled. Zero means "not rated" and yields no value.
func ExtractRating(text string) (float64, bool) {
	for _, m := range ratingValue.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.TrimSuffix(m[1], "."), 64)
		if err != nil || v <= 0 {
			continue
		}
		if v <= 5 {
			v *= 2
		}
		if v <= 10 {
			return v, true
		}
	}
	return 0, false
}

// ExtractPages reads a page count such as "320쪽" or "320 pages".
// Only values in (0, 5000) are accepted.
func ExtractPages(text string) (int, bool) {
	for _, m := range pageCount.FindAllStringSubmatch(text, -1) {
		if n, ok := validPages(m[1]); ok {
			return n, true
		}
	}
	return 0, false
}

// ExtractNumber returns the first integer in text, for values found next to
// a label where no unit is printed.
func ExtractNumber(text string) (int, bool) {
	m := firstNumber.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExtractPageNumber is ExtractNumber restricted to plausible page counts.
func ExtractPageNumber(text string) (int, bool) {
	if n, ok := ExtractPages(text); ok {
		return n, true
	}
	m := firstNumber.FindString(text)
	if m == "" {
		return 0, false
	}
	return validPages(m)
}

func validPages(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil || n <= 0 || n >= 5000 {
		return 0, false
	}
	return n, true
}

// ExtractProductID returns the numeric product id from a detail URL with any
// "S" variant prefix removed.
func ExtractProductID(href string) string {
	if m := productID.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := barcodeArg.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}
