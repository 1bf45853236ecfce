package normalize

import "strings"

// languageCodes maps the language spellings seen in structured data to ISO 639-1.
//
//nolint:gochecknoglobals // Static lookup table for language normalization
var languageCodes = map[string]string{
	"ko": "ko", "kor": "ko", "korean": "ko", "한국어": "ko", "국내도서": "ko",
	"en": "en", "eng": "en", "english": "en", "영어": "en",
	"ja": "ja", "jpn": "ja", "japanese": "ja", "일본어": "ja",
	"zh": "zh", "zho": "zh", "chi": "zh", "chinese": "zh", "중국어": "zh",
	"de": "de", "deu": "de", "ger": "de", "german": "de", "독일어": "de",
	"fr": "fr", "fra": "fr", "fre": "fr", "french": "fr", "프랑스어": "fr",
	"es": "es", "spa": "es", "spanish": "es", "스페인어": "es",
}

// LanguageCode converts a language name or code ("kor", "ko-KR", "Korean",
// "한국어") to a two-letter code. Unrecognized values yield "".
func LanguageCode(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, "-_"); idx > 0 {
		s = s[:idx]
	}
	return languageCodes[s]
}
