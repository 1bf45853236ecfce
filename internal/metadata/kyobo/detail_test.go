package kyobo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

var enrichedAt = parsedAt.Add(time.Minute)

func newTestDetailParser(opts ...ParserOption) *DetailParser {
	base := []ParserOption{WithClock(func() time.Time { return enrichedAt })}
	return NewDetailParser(append(base, opts...)...)
}

func listingBook(t *testing.T) domain.Book {
	t.Helper()
	b, err := domain.NewBook(domain.BookInput{ID: "1234567890", Title: "소크라테스의 변명"}, parsedAt)
	require.NoError(t, err)
	return b
}

func page(body string) string {
	return "<html><head></head><body>" + body + "</body></html>"
}

func TestEnrich_TOCFormatting(t *testing.T) {
	src := page(`<h3>목차</h3><div>1장 서론<br>1.1 배경</div>`)

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)

	assert.Equal(t, "1장 서론\n  1.1 배경", b.TableOfContents)
	assert.True(t, res.Succeeded(FieldTOC))
	assert.Equal(t, "heading-sibling", res.Sources[FieldTOC])
	assert.True(t, b.IsEnriched())
}

func TestEnrich_Rating(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"4.5점", 9},
		{"8.5점", 8.5},
		{"10", 10},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			src := page(`<div class="prod_review_box"><span class="review_klover_text">` + tt.text + `</span></div>`)

			b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
			require.NoError(t, err)
			require.NotNil(t, b.Rating)
			assert.InDelta(t, tt.want, *b.Rating, 1e-9)
			assert.Equal(t, ".review_klover_text", res.Sources[FieldRating])
		})
	}
}

func TestEnrich_NoRatingLeavesNil(t *testing.T) {
	b, res, err := newTestDetailParser().Enrich(listingBook(t), page(`<span class="review_klover_text">0</span>`))
	require.NoError(t, err)
	assert.Nil(t, b.Rating)
	assert.False(t, res.Succeeded(FieldRating))
}

func TestEnrich_ISBN(t *testing.T) {
	tests := []struct {
		name, body, want, source string
	}{
		{"table label", `<table><tr><th>ISBN</th><td>979-11-1234-567-3</td></tr></table>`, "9791112345673", "label"},
		{"definition list", `<dl><dt>ISBN</dt><dd>89-7275-325-0</dd></dl>`, "8972753250", "label"},
		{"body text", `<p>도서 정보 ISBN: 979-11-1234-567-3 쪽수 320쪽</p>`, "9791112345673", "body"},
		{"class selector", `<div class="isbn_area">9788932473901</div>`, "9788932473901", "selector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, res, err := newTestDetailParser().Enrich(listingBook(t), page(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.ISBN)
			assert.Equal(t, tt.source, res.Sources[FieldISBN])
		})
	}
}

func TestEnrich_RejectsMalformedISBN(t *testing.T) {
	b, res, err := newTestDetailParser().Enrich(listingBook(t), page(`<p>ISBN: 12-34</p>`))
	require.NoError(t, err)
	assert.Empty(t, b.ISBN)
	assert.False(t, res.Succeeded(FieldISBN))
}

func TestEnrich_CoverFallsBackToISBN(t *testing.T) {
	src := page(`<table><tr><th>ISBN</th><td>9791112345673</td></tr></table>`)

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, normalize.CoverURL("9791112345673", normalize.DefaultCoverWidth), b.CoverImageURL)
	assert.Equal(t, "deterministic", res.Sources[FieldCover])
}

func TestEnrich_CoverPrefersPortrait(t *testing.T) {
	src := `<html><head>
	<meta property="og:image" content="https://contents.kyobobook.co.kr/sih/fit-in/300x0/pdt/og.jpg">
	</head><body>
	<div class="portrait_img_box"><img src="//contents.kyobobook.co.kr/sih/fit-in/200x0/pdt/9791112345673.jpg"></div>
	</body></html>`

	b, res, err := newTestDetailParser(WithCoverWidth(600)).Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, "https://contents.kyobobook.co.kr/sih/fit-in/600x0/pdt/9791112345673.jpg", b.CoverImageURL)
	assert.Equal(t, "portrait", res.Sources[FieldCover])
}

func TestEnrich_CoverFromMeta(t *testing.T) {
	src := `<html><head>
	<meta property="og:image" content="https://contents.kyobobook.co.kr/sih/fit-in/300x0/pdt/og.jpg">
	</head><body><p>본문</p></body></html>`

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, "https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/og.jpg", b.CoverImageURL)
	assert.Equal(t, "meta", res.Sources[FieldCover])
}

func TestEnrich_LinkedData(t *testing.T) {
	src := `<html><head><script type="application/ld+json">
	{"@context":"https://schema.org","@graph":[
	  {"@type":"WebPage","name":"교보문고"},
	  {"@type":"Book","name":"소크라테스의 변명",
	   "isbn":"978-89-324-7390-1",
	   "author":[{"@type":"Person","name":"플라톤"},{"@type":"Person","name":"강철웅 옮김"}],
	   "publisher":{"@type":"Organization","name":"아카넷"},
	   "datePublished":"2020-03-15",
	   "numberOfPages":"248",
	   "image":"https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/9788932473901.jpg",
	   "description":"아테네 법정에서 행한 소크라테스의 변론을 담은 플라톤의 대화편이다."}
	]}
	</script></head><body><p class="publisher">다른출판사</p></body></html>`

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)

	assert.Equal(t, "9788932473901", b.ISBN)
	assert.Equal(t, []string{"플라톤", "강철웅"}, b.Authors)
	assert.Equal(t, "아카넷", b.Publisher, "linked data wins over selectors")
	assert.Equal(t, "2020-03-15", b.PublishDate)
	assert.Equal(t, 248, b.Pages)
	assert.Contains(t, b.Description, "아테네 법정")
	assert.Equal(t, "https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/9788932473901.jpg", b.CoverImageURL)

	for _, field := range []string{FieldLinkedData, FieldISBN, FieldPublisher, FieldPages, FieldCover} {
		assert.Equal(t, "json-ld", res.Sources[field], field)
	}
}

func TestEnrich_LinkedDataKeepsKnownAuthors(t *testing.T) {
	in, err := domain.NewBook(domain.BookInput{ID: "1", Title: "데미안", Authors: []string{"헤르만 헤세"}}, parsedAt)
	require.NoError(t, err)
	src := page(`<script type="application/ld+json">{"@type":"Book","name":"데미안","author":"전영애"}</script>`)

	b, _, err := newTestDetailParser().Enrich(in, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"헤르만 헤세"}, b.Authors)
}

func TestEnrich_Description(t *testing.T) {
	src := page(`<div class="intro_bottom"><div class="info_text">
	<p>소크라테스가 아테네 법정에서 자신을 변호한 기록입니다.</p>
	<p>철학의 출발점이 되는 <b>고전</b>입니다.</p>
	</div></div>`)

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, "소크라테스가 아테네 법정에서 자신을 변호한 기록입니다.\n\n철학의 출발점이 되는 고전입니다.", b.Description)
	assert.Equal(t, "selector", res.Sources[FieldDescription])
}

func TestEnrich_DescriptionFallsBackToMeta(t *testing.T) {
	src := `<html><head><meta property="og:description" content="플라톤이 전하는 소크라테스의 마지막 변론."></head>
	<body><div class="info_text">★★★★★★★★★★★★★★★★★★★★</div></body></html>`

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, "플라톤이 전하는 소크라테스의 마지막 변론.", b.Description)
	assert.Equal(t, "meta", res.Sources[FieldDescription])
}

func TestEnrich_DescriptionQualityFailureIsRecorded(t *testing.T) {
	src := page(`<div class="info_text">@@@@@@@@@@@@@@@@@@@@@@</div>`)

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Empty(t, b.Description)
	assert.False(t, res.Succeeded(FieldDescription))
	require.NotEmpty(t, res.Errors)
	assert.True(t, strings.HasPrefix(res.Errors[0], FieldDescription+":"))
}

func TestEnrich_DescriptionTruncated(t *testing.T) {
	long := strings.Repeat("가나다라마바사 ", 1000)
	src := page(`<div class="info_text">` + long + `</div>`)

	b, _, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(b.Description)), domain.MaxDescriptionLength)
	assert.NotEmpty(t, b.Description)
}

func TestEnrich_PagesPublisherDate(t *testing.T) {
	src := page(`<table class="tbl_row">
	<tr><th>발행일</th><td>2019년 08월 01일</td></tr>
	<tr><th>쪽수</th><td>312</td></tr>
	<tr><th>출판사</th><td>문학동네</td></tr>
	</table>`)

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, 312, b.Pages)
	assert.Equal(t, "label", res.Sources[FieldPages])
	assert.Equal(t, "문학동네", b.Publisher)
	assert.Equal(t, "2019-08-01", b.PublishDate)
}

func TestEnrich_Categories(t *testing.T) {
	src := page(`<ul class="intro_category_list">
	<li class="category_list_item"><a>국내도서</a> &gt; <a>인문</a> &gt; <a>철학</a></li>
	<li class="category_list_item"><a>국내도서</a> &gt; <a>인문</a> &gt; <a>서양철학</a></li>
	</ul>
	<div class="breadcrumb"><a>홈</a><a>도서</a><a>123</a><a>철학</a></div>`)

	b, res, err := newTestDetailParser().Enrich(listingBook(t), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"국내도서", "인문", "철학", "서양철학"}, b.Categories)
	assert.True(t, res.Succeeded(FieldCategories))
}

func TestEnrich_CategoriesCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<div class="breadcrumb">`)
	for _, c := range []string{"가", "나", "다", "라", "마", "바", "사", "아", "자", "차", "카", "타"} {
		sb.WriteString("<a>분류" + c + "</a>")
	}
	sb.WriteString(`</div>`)

	b, _, err := newTestDetailParser().Enrich(listingBook(t), page(sb.String()))
	require.NoError(t, err)
	assert.Len(t, b.Categories, domain.MaxCategories)
}

func TestEnrich_EmptyPageKeepsListingData(t *testing.T) {
	in := listingBook(t)

	b, res, err := newTestDetailParser().Enrich(in, page(`<p>없음</p>`))
	require.NoError(t, err)
	assert.Equal(t, in.Title, b.Title)
	assert.Equal(t, in.Authors, b.Authors)
	assert.Equal(t, enrichedAt, b.UpdatedAt)
	assert.Equal(t, in.CreatedAt, b.CreatedAt)
	assert.False(t, b.IsEnriched())
	assert.Less(t, res.SuccessRate(), 0.5)
}

func TestEnrich_DoesNotModifyInput(t *testing.T) {
	in := listingBook(t)
	src := page(`<div class="breadcrumb"><a>인문</a></div><span class="review_klover_text">4점</span>`)

	_, _, err := newTestDetailParser().Enrich(in, src)
	require.NoError(t, err)
	assert.Nil(t, in.Rating)
	assert.Nil(t, in.Categories)
	assert.Equal(t, parsedAt, in.UpdatedAt)
}

func TestParseBook(t *testing.T) {
	src := `<html><head>
	<title>데미안 | 교보문고</title>
	<meta property="og:title" content="데미안 - 교보문고">
	</head><body>
	<div class="prod_title_box"><span class="prod_title">데미안</span></div>
	<div class="prod_author_box"><div class="author"><a>헤르만 헤세</a><a>전영애 옮김</a></div></div>
	<table><tr><th>ISBN</th><td>9788937460449</td></tr></table>
	</body></html>`

	b, res, err := newTestDetailParser().ParseBook("S000001234567", src)
	require.NoError(t, err)
	assert.Equal(t, "000001234567", b.ID)
	assert.Equal(t, "데미안", b.Title)
	assert.Equal(t, []string{"헤르만 헤세", "전영애"}, b.Authors)
	assert.Equal(t, "9788937460449", b.ISBN)
	assert.Equal(t, "https://product.kyobobook.co.kr/detail/S000001234567", b.DetailPageURL)
	assert.Equal(t, enrichedAt, b.CreatedAt)
	assert.True(t, res.Succeeded(FieldISBN))
}

func TestParseBook_NoTitle(t *testing.T) {
	_, _, err := newTestDetailParser().ParseBook("1", page(`<p></p>`))
	require.Error(t, err)
}

func TestParseResults_SuccessRate(t *testing.T) {
	assert.Zero(t, ParseResults{}.SuccessRate())
	r := ParseResults{Fields: map[string]bool{FieldISBN: true, FieldPages: false, FieldTOC: true, FieldRating: false}}
	assert.InDelta(t, 0.5, r.SuccessRate(), 1e-9)
}

func TestRun_RecoversPanics(t *testing.T) {
	p := newTestDetailParser()
	x := &extraction{results: newParseResults()}

	p.run(x, FieldRating, func(*extraction) (string, error) {
		var m map[string]int
		m["boom"]++
		return "never", nil
	})

	assert.False(t, x.results.Fields[FieldRating])
	require.Len(t, x.results.Errors, 1)
	assert.Contains(t, x.results.Errors[0], "panic")
}
