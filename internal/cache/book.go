package cache

import (
	"sync/atomic"

	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/id"
)

// BookKeyPrefix namespaces detail records inside the book cache.
const BookKeyPrefix = "detail:"

// BookKey returns the cache key for a product id.
func BookKey(productID string) string {
	return BookKeyPrefix + productID
}

// BookStats extends Stats with the number of cached records rejected as too thin.
type BookStats struct {
	Stats
	ThinHits uint64 `json:"thin_hits"`
}

// BookCache stores detail records by product id. Stored and returned
// records are deep copies, so callers never share slices with the cache.
type BookCache struct {
	c        *Cache[domain.Book]
	thinHits atomic.Uint64
}

// NewBookCache creates a book cache. An empty opts.Name becomes "books".
func NewBookCache(opts Options) *BookCache {
	if opts.Name == "" {
		opts.Name = "books"
	}
	return &BookCache{c: New[domain.Book](opts)}
}

// Get returns the cached record for productID.
func (bc *BookCache) Get(productID string) (domain.Book, bool) {
	b, ok := bc.c.Get(BookKey(productID))
	if !ok {
		return domain.Book{}, false
	}
	return b.Clone(), true
}

// GetEnriched returns the cached record only when it carries detail-page
// data. A thin record counts as a miss for the caller.
func (bc *BookCache) GetEnriched(productID string) (domain.Book, bool) {
	b, ok := bc.Get(productID)
	if !ok {
		return domain.Book{}, false
	}
	if !b.IsEnriched() {
		bc.thinHits.Add(1)
		return domain.Book{}, false
	}
	return b, true
}

// Set stores b under its id and reports whether it was stored. Temporary
// ids are never cached, and an enriched record is not replaced by a thin one.
func (bc *BookCache) Set(b domain.Book) bool {
	if b.ID == "" || id.IsTemporary(b.ID) {
		return false
	}
	key := BookKey(b.ID)
	if !b.IsEnriched() {
		if prev, ok := bc.c.peek(key); ok && prev.IsEnriched() {
			return false
		}
	}
	bc.c.Set(key, b.Clone())
	return true
}

// Delete removes the record for productID.
func (bc *BookCache) Delete(productID string) bool {
	return bc.c.Delete(BookKey(productID))
}

// Clear drops every record and resets the counters.
func (bc *BookCache) Clear() {
	bc.c.Clear()
	bc.thinHits.Store(0)
}

// Len returns the number of stored records.
func (bc *BookCache) Len() int { return bc.c.Len() }

// Stats returns a snapshot of the counters.
func (bc *BookCache) Stats() BookStats {
	return BookStats{Stats: bc.c.Stats(), ThinHits: bc.thinHits.Load()}
}

// Stop halts the background sweeper.
func (bc *BookCache) Stop() { bc.c.Stop() }
