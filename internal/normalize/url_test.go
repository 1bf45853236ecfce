package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveURL(t *testing.T) {
	base := "https://search.kyobobook.co.kr/search?keyword=x"

	tests := []struct {
		ref  string
		want string
	}{
		{"/detail/S1", "https://search.kyobobook.co.kr/detail/S1"},
		{"//contents.kyobobook.co.kr/a.jpg", "https://contents.kyobobook.co.kr/a.jpg"},
		{"https://product.kyobobook.co.kr/detail/S2", "https://product.kyobobook.co.kr/detail/S2"},
		{"javascript:void(0)", ""},
		{"#", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(base, tt.ref))
		})
	}

	assert.Empty(t, ResolveURL("not a base", "/relative"))
}

func TestCoverURL(t *testing.T) {
	assert.Equal(t, "https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/9791190000000.jpg", CoverURL("9791190000000", 0))
	assert.Equal(t, "https://contents.kyobobook.co.kr/sih/fit-in/200x0/pdt/1.jpg", CoverURL("1", 200))
	assert.Empty(t, CoverURL("", 458))
}

func TestIsValidImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/9791190000000.jpg", true},
		{"https://contents.kyobobook.co.kr/sih/fit-in/300x0/pdt/9791190000000", true},
		{"https://cdn.example.com/covers/book.webp", true},
		{"https://contents.kyobobook.co.kr/sih/fit-in/30x0/pdt/1.jpg", false},
		{"https://static.kyobobook.co.kr/images/noimage.png", false},
		{"https://static.kyobobook.co.kr/images/logo.svg", false},
		{"data:image/gif;base64,R0lGOD", false},
		{"/relative/cover.jpg", false},
		{"https://example.com/page.html", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidImageURL(tt.url))
		})
	}
}

func TestOptimizeImageURL(t *testing.T) {
	in := "http://contents.kyobobook.co.kr/sih/fit-in/150x200/pdt/9791190000000.jpg"
	assert.Equal(t, "https://contents.kyobobook.co.kr/sih/fit-in/458x0/pdt/9791190000000.jpg", OptimizeImageURL(in, 458))

	other := "https://cdn.example.com/a.jpg"
	assert.Equal(t, other, OptimizeImageURL(other, 458))
}

func TestSameSite(t *testing.T) {
	assert.True(t, SameSite("product.kyobobook.co.kr", "kyobobook.co.kr"))
	assert.True(t, SameSite("kyobobook.co.kr", "kyobobook.co.kr"))
	assert.False(t, SameSite("notkyobobook.co.kr", "kyobobook.co.kr"))
	assert.False(t, SameSite("google-analytics.com", "kyobobook.co.kr"))
}
