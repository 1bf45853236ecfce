package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultQualityMax is the upper length bound used when callers do not widen it.
const DefaultQualityMax = 1000

const (
	maxSpecialRatio = 0.3
	maxRepeatRun    = 10
)

var residualTag = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(?:\s[^<>]*)?/?>`)

// commonPunct is punctuation that appears in ordinary prose and does not
// count toward the special-character ratio.
const commonPunct = ".,!?'\"()[]-:;·…~%/‘’“”「」『』〈〉《》"

// CheckQuality reports why text is unsuitable as a description-like field, or
// nil if it passes. Length is measured in runes; maxLen <= 0 uses DefaultQualityMax.
func CheckQuality(text string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultQualityMax
	}
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return fmt.Errorf("empty text")
	case n < 2:
		return fmt.Errorf("text too short (%d)", n)
	case n > maxLen:
		return fmt.Errorf("text too long (%d > %d)", n, maxLen)
	}

	if residualTag.MatchString(text) {
		return fmt.Errorf("text contains markup")
	}

	var special, counted int
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= maxRepeatRun {
				return fmt.Errorf("text repeats %q %d times", r, run)
			}
		} else {
			run = 1
		}
		prev = r

		if unicode.IsSpace(r) {
			continue
		}
		counted++
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !strings.ContainsRune(commonPunct, r) {
			special++
		}
	}
	if counted > 0 && float64(special)/float64(counted) >= maxSpecialRatio {
		return fmt.Errorf("special character ratio %.2f", float64(special)/float64(counted))
	}
	return nil
}

// IsQualityText is CheckQuality as a predicate.
func IsQualityText(text string, maxLen int) bool {
	return CheckQuality(text, maxLen) == nil
}
