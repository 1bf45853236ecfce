package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckQuality(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		wantOK bool
	}{
		{"ordinary prose", "아테네 법정에서 소크라테스가 행한 변론을 기록한 책이다.", 0, true},
		{"empty", "   ", 0, false},
		{"single rune", "가", 0, false},
		{"too long for default", strings.Repeat("가나다 ", 300), 0, false},
		{"widened limit", strings.Repeat("가나다 ", 300), 5000, true},
		{"residual markup", "소개 <div class=\"x\">본문</div>", 0, false},
		{"repeated run", "좋아요ㅋㅋㅋㅋㅋㅋㅋㅋㅋㅋ", 0, false},
		{"nine repeats allowed", "좋아요ㅋㅋㅋㅋㅋㅋㅋㅋㅋ 정말", 0, true},
		{"symbol soup", "★★☆ ※※ ◆◆ ▶▶ 책", 0, false},
		{"comparison text survives", "가격 < 10000원", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckQuality(tt.text, tt.maxLen)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Equal(t, tt.wantOK, IsQualityText(tt.text, tt.maxLen))
		})
	}
}

func TestLanguageCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ko", "ko"},
		{"ko-KR", "ko"},
		{"kor", "ko"},
		{"Korean", "ko"},
		{"한국어", "ko"},
		{"eng", "en"},
		{"ja_JP", "ja"},
		{"klingon", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, LanguageCode(tt.input))
		})
	}
}
