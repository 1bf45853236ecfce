// Package domain contains the canonical book record produced by the scraping pipeline.
package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/listenupapp/kyobo-metadata/internal/normalize"
)

// UnknownAuthor is substituted when a listing carries no author markup.
const UnknownAuthor = "저자미상"

// DefaultLanguage is the language assumed for every record from the store.
const DefaultLanguage = "ko"

// Field limits enforced on every record.
const (
	MaxDescriptionLength = 5000
	MaxTOCLength         = 10000
	MaxCategories        = 10
	MaxRating            = 10.0
	MaxPages             = 5000
)

// minEnrichedDescription is the description length, in runes, that counts as
// detail-page data rather than a listing blurb.
const minEnrichedDescription = 20

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Book is the normalized record for one title. Treat it as a value: Apply
// returns a new Book and never modifies the receiver.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Subtitle        string    `json:"subtitle,omitempty"`
	Authors         []string  `json:"authors"`
	Publisher       string    `json:"publisher"`
	PublishDate     string    `json:"publish_date,omitempty"` // YYYY-MM-DD
	ISBN            string    `json:"isbn,omitempty"`
	Pages           int       `json:"pages,omitempty"` // 0 means unknown
	Language        string    `json:"language"`
	Description     string    `json:"description,omitempty"`
	TableOfContents string    `json:"table_of_contents,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	Rating          *float64  `json:"rating,omitempty"` // 0-10 scale
	CoverImageURL   string    `json:"cover_image_url,omitempty"`
	DetailPageURL   string    `json:"detail_page_url,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BookInput is the minimal data needed to create a record from a listing.
type BookInput struct {
	ID            string
	Title         string
	Subtitle      string
	Authors       []string
	Publisher     string
	PublishDate   string
	ISBN          string
	CoverImageURL string
	DetailPageURL string
	Tags          []string
}

// BookUpdate is a partial update. Nil fields are left untouched.
type BookUpdate struct {
	Title           *string
	Subtitle        *string
	Authors         []string // nil leaves authors untouched
	Publisher       *string
	PublishDate     *string
	ISBN            *string
	Pages           *int
	Language        *string
	Description     *string
	TableOfContents *string
	Categories      []string // nil leaves categories untouched
	Rating          *float64
	CoverImageURL   *string
	DetailPageURL   *string
	Tags            []string
}

// IsEmpty reports whether the update carries no fields.
func (u BookUpdate) IsEmpty() bool {
	return u.Title == nil && u.Subtitle == nil && u.Authors == nil && u.Publisher == nil &&
		u.PublishDate == nil && u.ISBN == nil && u.Pages == nil && u.Language == nil && u.Description == nil &&
		u.TableOfContents == nil && u.Categories == nil && u.Rating == nil &&
		u.CoverImageURL == nil && u.DetailPageURL == nil && u.Tags == nil
}

// NewBook builds a validated record from listing data.
func NewBook(in BookInput, now time.Time) (Book, error) {
	b := Book{
		ID:            strings.TrimSpace(in.ID),
		Title:         normalize.CleanText(in.Title),
		Subtitle:      normalize.CleanText(in.Subtitle),
		Authors:       cleanList(in.Authors),
		Publisher:     normalize.CleanText(in.Publisher),
		PublishDate:   strings.TrimSpace(in.PublishDate),
		ISBN:          normalize.NormalizeISBN(in.ISBN),
		Language:      DefaultLanguage,
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		DetailPageURL: strings.TrimSpace(in.DetailPageURL),
		Tags:          cleanList(in.Tags),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(b.Authors) == 0 {
		b.Authors = []string{UnknownAuthor}
	}
	if err := b.Validate(); err != nil {
		return Book{}, err
	}
	return b, nil
}

// Apply merges u into a copy of b and refreshes UpdatedAt.
// The receiver is not modified. An update that would break a record
// invariant is rejected as a whole.
func (b Book) Apply(u BookUpdate, now time.Time) (Book, error) {
	next := b.Clone()

	if u.Title != nil {
		next.Title = normalize.CleanText(*u.Title)
	}
	if u.Subtitle != nil {
		next.Subtitle = normalize.CleanText(*u.Subtitle)
	}
	if u.Authors != nil {
		next.Authors = cleanList(u.Authors)
		if len(next.Authors) == 0 {
			next.Authors = []string{UnknownAuthor}
		}
	}
	if u.Publisher != nil {
		next.Publisher = normalize.CleanText(*u.Publisher)
	}
	if u.PublishDate != nil {
		next.PublishDate = strings.TrimSpace(*u.PublishDate)
	}
	if u.ISBN != nil {
		next.ISBN = normalize.NormalizeISBN(*u.ISBN)
		if next.ISBN == "" && strings.TrimSpace(*u.ISBN) != "" {
			return Book{}, fmt.Errorf("isbn %q must have 10 or 13 digits", *u.ISBN)
		}
	}
	if u.Pages != nil {
		next.Pages = *u.Pages
	}
	if u.Language != nil {
		if code := normalize.LanguageCode(*u.Language); code != "" {
			next.Language = code
		}
	}
	if u.Description != nil {
		next.Description = truncateRunes(normalize.CleanMultiline(*u.Description), MaxDescriptionLength)
	}
	if u.TableOfContents != nil {
		next.TableOfContents = truncateRunes(strings.Trim(*u.TableOfContents, "\n"), MaxTOCLength)
	}
	if u.Categories != nil {
		next.Categories = cleanList(u.Categories)
		if len(next.Categories) > MaxCategories {
			next.Categories = next.Categories[:MaxCategories]
		}
	}
	if u.Rating != nil {
		r := *u.Rating
		next.Rating = &r
	}
	if u.CoverImageURL != nil {
		next.CoverImageURL = strings.TrimSpace(*u.CoverImageURL)
	}
	if u.DetailPageURL != nil {
		next.DetailPageURL = strings.TrimSpace(*u.DetailPageURL)
	}
	if u.Tags != nil {
		next.Tags = cleanList(u.Tags)
	}

	next.UpdatedAt = now
	if err := next.Validate(); err != nil {
		return Book{}, err
	}
	return next, nil
}

// Validate checks the record invariants.
func (b Book) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("book id is required")
	}
	if b.Title == "" {
		return fmt.Errorf("book %s: title is required", b.ID)
	}
	if b.Rating != nil && (*b.Rating < 0 || *b.Rating > MaxRating) {
		return fmt.Errorf("book %s: rating %.2f outside [0,10]", b.ID, *b.Rating)
	}
	if b.Pages < 0 || b.Pages >= MaxPages {
		return fmt.Errorf("book %s: page count %d out of range", b.ID, b.Pages)
	}
	if b.ISBN != "" && len(b.ISBN) != 10 && len(b.ISBN) != 13 {
		return fmt.Errorf("book %s: isbn %q must have 10 or 13 digits", b.ID, b.ISBN)
	}
	if b.PublishDate != "" && !isoDate.MatchString(b.PublishDate) {
		return fmt.Errorf("book %s: publish date %q is not YYYY-MM-DD", b.ID, b.PublishDate)
	}
	return nil
}

// IsEnriched reports whether the record carries detail-page data. Records
// built from a listing alone never do.
func (b Book) IsEnriched() bool {
	if b.ISBN != "" || b.Pages > 0 || strings.TrimSpace(b.TableOfContents) != "" {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(b.Description)) >= minEnrichedDescription
}

// PrimaryAuthor returns the first listed author or UnknownAuthor.
func (b Book) PrimaryAuthor() string {
	if len(b.Authors) == 0 {
		return UnknownAuthor
	}
	return b.Authors[0]
}

// Clone returns a deep copy so callers cannot share slices or the rating pointer.
func (b Book) Clone() Book {
	c := b
	c.Authors = slices.Clone(b.Authors)
	c.Categories = slices.Clone(b.Categories)
	c.Tags = slices.Clone(b.Tags)
	if b.Rating != nil {
		r := *b.Rating
		c.Rating = &r
	}
	return c
}

// cleanList trims entries and drops empties and duplicates, keeping first-seen order.
func cleanList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = normalize.CleanText(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit]))
}
