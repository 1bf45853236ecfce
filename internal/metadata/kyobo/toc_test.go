package kyobo

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/kyobo-metadata/internal/dom"
	"github.com/listenupapp/kyobo-metadata/internal/domain"
)

func TestFormatTOC(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "chapter and subheading",
			raw:  "1장 서론<br>1.1 배경",
			want: "1장 서론\n  1.1 배경",
		},
		{
			name: "list markup with bullets duplicates and keyword",
			raw:  "<ul><li>• 1장 시작</li><li>1.1 배경</li><li>1.1 배경</li><li>목차</li><li>가</li><li>제2장 전개</li><li>(1) 세부</li></ul>",
			want: "1장 시작\n  1.1 배경\n제2장 전개\n  (1) 세부",
		},
		{
			name: "plain text keeps lines",
			raw:  "Part 1 Beginnings\n1-1 First steps\n가. 개요\nChapter 2 Growth",
			want: "Part 1 Beginnings\n  1-1 First steps\n  가. 개요\nChapter 2 Growth",
		},
		{
			name: "numbered chapters are not indented",
			raw:  "1. 들어가며\n2. 나가며",
			want: "1. 들어가며\n2. 나가며",
		},
		{
			name: "empty",
			raw:  "  ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTOC(tt.raw))
		})
	}
}

func TestFormatTOC_CapsWholeLines(t *testing.T) {
	var sb strings.Builder
	for i := range 2000 {
		fmt.Fprintf(&sb, "%d장 충분히 긴 제목 줄입니다\n", i+1)
	}

	toc := FormatTOC(sb.String())
	assert.LessOrEqual(t, utf8.RuneCountInString(toc), domain.MaxTOCLength)
	lines := strings.Split(toc, "\n")
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "제목 줄입니다"), "last line is complete")
}

func TestFormatTOC_DropsOverlongLines(t *testing.T) {
	toc := FormatTOC("1장 짧은 제목\n" + strings.Repeat("가", maxTOCLineLength+1))
	assert.Equal(t, "1장 짧은 제목", toc)
}

func tocOf(t *testing.T, body string) (string, string, bool) {
	t.Helper()
	doc, err := dom.Parse(page(body))
	require.NoError(t, err)
	return newTestDetailParser().tableOfContents(doc)
}

func TestTableOfContents_Strategies(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		source string
	}{
		{
			name:   "heading sibling",
			body:   `<h3>목차</h3><div>1장 서론<br>1.1 배경</div>`,
			want:   "1장 서론\n  1.1 배경",
			source: "heading-sibling",
		},
		{
			name: "heading sibling with item elements",
			body: `<h2 class="title_heading">목차</h2>
			<div class="auto_overflow_wrap"><ul>
			<li class="book_contents_item">1부 시작<br>1장 만남</li>
			<li class="book_contents_item">2부 끝</li>
			</ul></div>`,
			want:   "1부 시작\n1장 만남\n2부 끝",
			source: "heading-sibling",
		},
		{
			name: "parent sibling",
			body: `<div class="tit_wrap"><h2>목차</h2></div>
			<div class="book_contents"><ul><li class="book_contents_item">1장 시작</li><li class="book_contents_item">2장 끝</li></ul></div>`,
			want:   "1장 시작\n2장 끝",
			source: "parent-sibling",
		},
		{
			name: "sibling walk stops at next section",
			body: `<div><h4>목차</h4><span></span><p>1부 탄생</p><p>2부 성장</p><h4>저자 소개</h4><p>저자는 소설가다</p></div>`,
			want:   "1부 탄생\n2부 성장",
			source: "sibling-walk",
		},
		{
			name:   "list aggregation",
			body:   `<div id="area"><div><div><b>목차</b></div></div><ul><li>1장 가나</li><li>2장 다라</li></ul></div>`,
			want:   "1장 가나\n2장 다라",
			source: "list-aggregation",
		},
		{
			name:   "content selectors",
			body:   `<div class="book_contents"><p>1장 하나<br>2장 둘</p></div>`,
			want:   "1장 하나\n2장 둘",
			source: "content-selectors",
		},
		{
			name:   "selector sweep",
			body:   `<div id="tocArea"><p>서문</p><p>본문 이야기</p></div>`,
			want:   "서문\n본문 이야기",
			source: "selector-sweep",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toc, source, ok := tocOf(t, tt.body)
			require.True(t, ok)
			assert.Equal(t, tt.want, toc)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestTableOfContents_NoneFound(t *testing.T) {
	_, _, ok := tocOf(t, `<p>이 책의 목차는 준비 중입니다</p>`)
	assert.False(t, ok)
}

func TestTOCFromText(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("책 소개 문단\n목차\n")
	for i := range 10 {
		fmt.Fprintf(&sb, "%d장 제목입니다\n", i+1)
	}
	sb.WriteString("\n저자 소개 문단")

	block := tocFromText(sb.String())
	assert.True(t, strings.HasPrefix(block, "1장 제목입니다"))
	assert.True(t, strings.HasSuffix(block, "10장 제목입니다"))
	assert.NotContains(t, block, "저자")
}

func TestTOCFromText_BlankLinesBetweenParts(t *testing.T) {
	text := "목차\n" +
		"1장 첫번째 장의 시작\n1.1 처음 만나는 이야기\n1.2 두번째 이야기\n" +
		"\n\n2장 두번째 장 내용\n2.1 이어지는 이야기\n" +
		"\n3장 세번째 장의 마무리\n\n저자 소개 문단"

	block := tocFromText(text)
	assert.True(t, strings.HasPrefix(block, "1장 첫번째 장의 시작"))
	assert.Contains(t, block, "2장 두번째 장 내용")
	assert.True(t, strings.HasSuffix(block, "3장 세번째 장의 마무리"))
	assert.NotContains(t, block, "저자")
}

func TestTOCFromText_Rejects(t *testing.T) {
	assert.Empty(t, tocFromText("목차\n1장 짧음\n\n저자"), "shorter than the minimum block")
	assert.Empty(t, tocFromText("이 책의 목차는 다음과 같다"), "keyword not on its own line")
	assert.Empty(t, tocFromText("목차\n"+strings.Repeat("가", maxBodyTOC+100)), "no terminator within the maximum")
}

func TestStartsOtherSection(t *testing.T) {
	doc, err := dom.Parse(page(`<h4 id="a">저자 소개</h4><div id="b"><h3>출판사 리뷰</h3></div><h4 id="c">목차 안내</h4><p id="d">저자</p>`))
	require.NoError(t, err)

	assert.True(t, startsOtherSection(doc.Find("#a")))
	assert.True(t, startsOtherSection(doc.Find("#b")))
	assert.False(t, startsOtherSection(doc.Find("#c")))
	assert.False(t, startsOtherSection(doc.Find("#d")), "plain paragraphs are not headings")
}
