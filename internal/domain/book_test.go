package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	later   = created.Add(time.Hour)
)

func ptr[T any](v T) *T { return &v }

func TestNewBook_Minimal(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1234567890", Title: "  소크라테스의   변명 "}, created)
	require.NoError(t, err)

	assert.Equal(t, "1234567890", b.ID)
	assert.Equal(t, "소크라테스의 변명", b.Title)
	assert.Equal(t, []string{UnknownAuthor}, b.Authors)
	assert.Equal(t, "", b.Publisher)
	assert.Equal(t, DefaultLanguage, b.Language)
	assert.Equal(t, created, b.CreatedAt)
	assert.Equal(t, created, b.UpdatedAt)
	assert.False(t, b.IsEnriched())
}

func TestNewBook_RequiresIDAndTitle(t *testing.T) {
	_, err := NewBook(BookInput{Title: "제목"}, created)
	assert.Error(t, err)

	_, err = NewBook(BookInput{ID: "1", Title: " <b></b> "}, created)
	assert.Error(t, err)
}

func TestNewBook_DropsInvalidISBN(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1", Title: "t", ISBN: "123"}, created)
	require.NoError(t, err)
	assert.Empty(t, b.ISBN)
}

func TestNewBook_RejectsMalformedDate(t *testing.T) {
	_, err := NewBook(BookInput{ID: "1", Title: "t", PublishDate: "2023.05.01"}, created)
	assert.Error(t, err)
}

func TestApply_OnlyOverwritesPresentFields(t *testing.T) {
	b, err := NewBook(BookInput{
		ID:        "1",
		Title:     "데미안",
		Authors:   []string{"헤르만 헤세"},
		Publisher: "민음사",
	}, created)
	require.NoError(t, err)

	next, err := b.Apply(BookUpdate{
		ISBN:        ptr("978-89-374-6044-9"),
		Pages:       ptr(248),
		Rating:      ptr(9.2),
		Description: ptr("  싱클레어의   성장 이야기.\n\n\n\n두 세계 사이에서. "),
		Categories:  []string{"소설", "독일소설", "소설"},
	}, later)
	require.NoError(t, err)

	assert.Equal(t, "데미안", next.Title)
	assert.Equal(t, []string{"헤르만 헤세"}, next.Authors)
	assert.Equal(t, "민음사", next.Publisher)
	assert.Equal(t, "9788937460449", next.ISBN)
	assert.Equal(t, 248, next.Pages)
	assert.InDelta(t, 9.2, *next.Rating, 0.001)
	assert.Equal(t, "싱클레어의 성장 이야기.\n\n두 세계 사이에서.", next.Description)
	assert.Equal(t, []string{"소설", "독일소설"}, next.Categories)
	assert.Equal(t, created, next.CreatedAt)
	assert.Equal(t, later, next.UpdatedAt)
	assert.True(t, next.IsEnriched())

	// The original is untouched.
	assert.Empty(t, b.ISBN)
	assert.Equal(t, created, b.UpdatedAt)
}

func TestApply_EmptyUpdateRefreshesTimestamp(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1", Title: "t"}, created)
	require.NoError(t, err)

	next, err := b.Apply(BookUpdate{}, later)
	require.NoError(t, err)

	assert.Equal(t, later, next.UpdatedAt)
	b.UpdatedAt = later
	assert.Empty(t, cmp.Diff(b, next))
}

func TestApply_RejectsInvariantViolations(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1", Title: "t"}, created)
	require.NoError(t, err)

	tests := []struct {
		name   string
		update BookUpdate
	}{
		{"rating above ten", BookUpdate{Rating: ptr(10.5)}},
		{"negative rating", BookUpdate{Rating: ptr(-1.0)}},
		{"negative pages", BookUpdate{Pages: ptr(-3)}},
		{"too many pages", BookUpdate{Pages: ptr(5000)}},
		{"bad isbn", BookUpdate{ISBN: ptr("12345")}},
		{"empty title", BookUpdate{Title: ptr("   ")}},
		{"bad date", BookUpdate{PublishDate: ptr("2023년")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Apply(tt.update, later)
			assert.Error(t, err)
		})
	}
}

func TestApply_CapsLongFields(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1", Title: "t"}, created)
	require.NoError(t, err)

	cats := make([]string, 0, 15)
	for i := range 15 {
		cats = append(cats, strings.Repeat("가", i+1))
	}

	next, err := b.Apply(BookUpdate{
		Description:     ptr(strings.Repeat("가", MaxDescriptionLength+50)),
		TableOfContents: ptr(strings.Repeat("나\n", MaxTOCLength)),
		Categories:      cats,
	}, later)
	require.NoError(t, err)

	assert.Len(t, []rune(next.Description), MaxDescriptionLength)
	assert.LessOrEqual(t, len([]rune(next.TableOfContents)), MaxTOCLength)
	assert.Len(t, next.Categories, MaxCategories)
}

func TestApply_LanguageNormalized(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1", Title: "t"}, created)
	require.NoError(t, err)

	next, err := b.Apply(BookUpdate{Language: ptr("eng")}, later)
	require.NoError(t, err)
	assert.Equal(t, "en", next.Language)

	next, err = b.Apply(BookUpdate{Language: ptr("unknown-tongue")}, later)
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, next.Language)
}

func TestClone_IsDeep(t *testing.T) {
	b, err := NewBook(BookInput{ID: "1", Title: "t", Authors: []string{"a"}}, created)
	require.NoError(t, err)
	b, err = b.Apply(BookUpdate{Rating: ptr(8.0)}, later)
	require.NoError(t, err)

	c := b.Clone()
	c.Authors[0] = "changed"
	*c.Rating = 1

	assert.Equal(t, "a", b.Authors[0])
	assert.InDelta(t, 8.0, *b.Rating, 0.001)
}

func TestIsEnriched(t *testing.T) {
	base := Book{ID: "1", Title: "t"}

	tests := []struct {
		name string
		b    Book
		want bool
	}{
		{"listing only", base, false},
		{"short blurb", Book{ID: "1", Title: "t", Description: "짧은 소개"}, false},
		{"long description", Book{ID: "1", Title: "t", Description: strings.Repeat("설명", 10)}, true},
		{"isbn", Book{ID: "1", Title: "t", ISBN: "9788937460449"}, true},
		{"pages", Book{ID: "1", Title: "t", Pages: 10}, true},
		{"toc", Book{ID: "1", Title: "t", TableOfContents: "1장"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.IsEnriched())
		})
	}
}

func TestPrimaryAuthor(t *testing.T) {
	assert.Equal(t, UnknownAuthor, Book{}.PrimaryAuthor())
	assert.Equal(t, "한강", Book{Authors: []string{"한강", "b"}}.PrimaryAuthor())
}
