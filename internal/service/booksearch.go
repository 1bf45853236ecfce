package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/kyobo-metadata/internal/cache"
	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/id"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/media/covers"
	"github.com/listenupapp/kyobo-metadata/internal/metadata/kyobo"
	"github.com/listenupapp/kyobo-metadata/internal/validation"
)

const defaultDetailWorkers = 2

// SearchRequest is a keyword search against the bookstore.
type SearchRequest struct {
	Query          string `json:"query" validate:"nonblank,min=2,max=100"`
	MaxResults     int    `json:"max_results" validate:"gte=0,lte=100"` // 0 uses the configured default
	IncludeDetails bool   `json:"include_details"`
}

type detailRequest struct {
	ID string `json:"id" validate:"required,numeric,max=20"`
}

// CacheStats reports both result caches.
type CacheStats struct {
	Search cache.Stats     `json:"search"`
	Books  cache.BookStats `json:"books"`
}

// BookService is the entry point for searching and enriching books.
// Every network call goes through one shared client, so the request gate
// applies across concurrent callers.
type BookService struct {
	client     *kyobo.Client
	search     *kyobo.SearchParser
	detail     *kyobo.DetailParser
	discoverer *kyobo.TOCDiscoverer
	covers     *covers.Downloader
	searches   *cache.Cache[[]domain.Book]
	books      *cache.BookCache
	validator  *validation.Validator
	cfg        config.KyoboConfig
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a BookService.
type Option func(*BookService)

// WithClock sets the clock used for timestamps the service applies itself.
func WithClock(now func() time.Time) Option {
	return func(s *BookService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBookService creates a new book service.
func NewBookService(
	client *kyobo.Client,
	search *kyobo.SearchParser,
	detail *kyobo.DetailParser,
	discoverer *kyobo.TOCDiscoverer,
	coverDownloader *covers.Downloader,
	searches *cache.Cache[[]domain.Book],
	books *cache.BookCache,
	validator *validation.Validator,
	cfg config.KyoboConfig,
	log *slog.Logger,
	opts ...Option,
) *BookService {
	if cfg.DetailWorkers < 1 {
		cfg.DetailWorkers = defaultDetailWorkers
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = kyobo.DefaultMaxResults
	}
	s := &BookService{
		client:     client,
		search:     search,
		detail:     detail,
		discoverer: discoverer,
		covers:     coverDownloader,
		searches:   searches,
		books:      books,
		validator:  validator,
		cfg:        cfg,
		logger:     logger.Component(log, "book-service"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs a keyword search. Results are cached per query, limit and
// detail mode. With IncludeDetails each listed book is enriched from its
// detail page; a book whose enrichment fails is returned as listed.
func (s *BookService) Search(ctx context.Context, req SearchRequest) ([]domain.Book, error) {
	req.Query = strings.TrimSpace(req.Query)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	limit := req.MaxResults
	if limit == 0 {
		limit = s.cfg.MaxResults
	}

	log := s.requestLogger().With("query", req.Query)
	key := searchKey(req.Query, limit, req.IncludeDetails)

	if books, ok := s.cachedSearch(log, key); ok {
		log.Debug("cache hit for search", "results", len(books))
		return books, nil
	}

	url := s.client.Endpoints().SearchURL(req.Query)
	log.Debug("fetching search results", "url", url)

	page, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	books, metrics, err := s.search.ParseBooks(page, limit)
	if err != nil {
		return nil, err
	}
	log.Info("parsed search results",
		"strategy", metrics.Strategy,
		"candidates", metrics.Candidates,
		"parsed", metrics.Parsed,
		"excluded", metrics.Excluded,
		"failed", metrics.Failed,
	)

	if req.IncludeDetails && len(books) > 0 {
		books, err = s.enrichAll(ctx, log, books)
		if err != nil {
			return nil, err
		}
	}

	s.storeSearch(log, key, books)
	return books, nil
}

// enrichAll fetches detail pages for books with a bounded worker pool.
// Order is preserved. Only cancellation of ctx fails the batch.
func (s *BookService) enrichAll(ctx context.Context, log *slog.Logger, books []domain.Book) ([]domain.Book, error) {
	out := make([]domain.Book, len(books))
	copy(out, books)

	var g errgroup.Group
	g.SetLimit(s.cfg.DetailWorkers)

	for i, b := range books {
		if id.IsTemporary(b.ID) {
			continue
		}
		g.Go(func() error {
			enriched, err := s.bookDetail(ctx, log.With("book_id", b.ID), b)
			if err != nil {
				log.Warn("detail enrichment failed, keeping listing record",
					"book_id", b.ID,
					"error", err,
				)
				return nil
			}
			out[i] = enriched
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, "search canceled during enrichment")
	}

	enriched := 0
	for _, b := range out {
		if b.IsEnriched() {
			enriched++
		}
	}
	log.Info("enriched search results", "books", len(out), "enriched", enriched)
	return out, nil
}

// GetBookDetail enriches b from its detail page. A cached record is used
// only when it already carries detail data.
func (s *BookService) GetBookDetail(ctx context.Context, b domain.Book) (domain.Book, error) {
	if strings.TrimSpace(b.ID) == "" {
		return domain.Book{}, errors.Validation("book id is required")
	}
	if id.IsTemporary(b.ID) {
		return domain.Book{}, errors.Validationf("book %q has no product id", b.ID)
	}
	return s.bookDetail(ctx, s.requestLogger().With("book_id", b.ID), b)
}

func (s *BookService) bookDetail(ctx context.Context, log *slog.Logger, b domain.Book) (domain.Book, error) {
	if cached, ok := s.cachedBook(log, b.ID); ok {
		log.Debug("cache hit for book", "age", s.now().Sub(cached.UpdatedAt))
		return cached, nil
	}

	url := b.DetailPageURL
	if url == "" {
		url = s.client.Endpoints().DetailURL(b.ID)
	}
	log.Debug("fetching book detail", "url", url)

	page, err := s.client.Get(ctx, url)
	if err != nil {
		return domain.Book{}, err
	}

	enriched, results, err := s.detail.Enrich(b, page)
	if err != nil {
		return domain.Book{}, err
	}
	logParseResults(log, results)

	enriched = s.completeTOC(ctx, log, enriched, url, page)
	s.storeBook(log, enriched)
	return enriched, nil
}

// GetBookByID builds a record from the detail page alone.
// A leading "S" on the id is ignored.
func (s *BookService) GetBookByID(ctx context.Context, productID string) (domain.Book, error) {
	productID = strings.TrimPrefix(strings.TrimSpace(productID), "S")
	if err := s.validator.Validate(detailRequest{ID: productID}); err != nil {
		return domain.Book{}, err
	}

	log := s.requestLogger().With("book_id", productID)
	if cached, ok := s.cachedBook(log, productID); ok {
		log.Debug("cache hit for book", "age", s.now().Sub(cached.UpdatedAt))
		return cached, nil
	}

	url := s.client.Endpoints().DetailURL(productID)
	log.Debug("fetching book detail", "url", url)

	page, err := s.client.Get(ctx, url)
	if err != nil {
		return domain.Book{}, err
	}

	b, results, err := s.detail.ParseBook(productID, page)
	if err != nil {
		return domain.Book{}, err
	}
	logParseResults(log, results)

	b = s.completeTOC(ctx, log, b, url, page)
	s.storeBook(log, b)
	return b, nil
}

// completeTOC asks the discoverer for contents when the page had none, or
// always when the API is preferred. Failures leave b unchanged.
func (s *BookService) completeTOC(ctx context.Context, log *slog.Logger, b domain.Book, detailURL, page string) domain.Book {
	if b.TableOfContents != "" && !s.cfg.PreferTOCAPI {
		return b
	}

	toc, source, ok := s.discoverer.Discover(ctx, b.ID, detailURL, page)
	if !ok {
		log.Debug("no contents discovered")
		return b
	}

	updated, err := b.Apply(domain.BookUpdate{TableOfContents: &toc}, s.now())
	if err != nil {
		log.Warn("discovered contents rejected", "source", source, "error", err)
		return b
	}
	log.Debug("contents discovered", "source", source, "length", len(toc))
	return updated
}

// HealthCheck reports whether the bookstore is reachable. False means the
// caller should work offline.
func (s *BookService) HealthCheck(ctx context.Context) bool {
	return s.client.HealthCheck(ctx)
}

// CoverImage downloads a cover and returns it as an embeddable data URI.
func (s *BookService) CoverImage(ctx context.Context, url string) (*covers.Cover, error) {
	return s.covers.Download(ctx, strings.TrimSpace(url))
}

// CacheStats returns a snapshot of both caches.
func (s *BookService) CacheStats() CacheStats {
	var stats CacheStats
	s.guardCache(s.logger, "stats", func() {
		stats = CacheStats{Search: s.searches.Stats(), Books: s.books.Stats()}
	})
	return stats
}

// ClearCache drops every cached search and book.
func (s *BookService) ClearCache() {
	s.guardCache(s.logger, "clear", func() {
		s.searches.Clear()
		s.books.Clear()
	})
	s.logger.Info("caches cleared")
}

func (s *BookService) requestLogger() *slog.Logger {
	return s.logger.With("request_id", uuid.NewString())
}

func (s *BookService) cachedSearch(log *slog.Logger, key string) ([]domain.Book, bool) {
	var (
		books []domain.Book
		ok    bool
	)
	s.guardCache(log, "get search", func() {
		books, ok = s.searches.Get(key)
	})
	if !ok {
		return nil, false
	}
	return cloneBooks(books), true
}

func (s *BookService) storeSearch(log *slog.Logger, key string, books []domain.Book) {
	s.guardCache(log, "set search", func() {
		s.searches.Set(key, cloneBooks(books))
	})
}

func (s *BookService) cachedBook(log *slog.Logger, productID string) (domain.Book, bool) {
	var (
		b  domain.Book
		ok bool
	)
	s.guardCache(log, "get book", func() {
		b, ok = s.books.GetEnriched(productID)
	})
	return b, ok
}

func (s *BookService) storeBook(log *slog.Logger, b domain.Book) {
	s.guardCache(log, "set book", func() {
		if !s.books.Set(b) {
			log.Debug("book not cached")
		}
	})
}

// guardCache runs fn and turns a panic into a logged cache error. The cache
// never fails a request.
func (s *BookService) guardCache(log *slog.Logger, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("cache operation failed",
				"op", op,
				"error", errors.Cache(fmt.Sprint(r)),
			)
		}
	}()
	fn()
}

func logParseResults(log *slog.Logger, results kyobo.ParseResults) {
	log.Debug("parsed book detail",
		"success_rate", results.SuccessRate(),
		"sources", results.Sources,
		"errors", results.Errors,
	)
}

func searchKey(query string, limit int, details bool) string {
	key := "search:" + query + ":" + strconv.Itoa(limit)
	if details {
		key += ":details"
	}
	return key
}

func cloneBooks(books []domain.Book) []domain.Book {
	if books == nil {
		return nil
	}
	out := make([]domain.Book, len(books))
	for i, b := range books {
		out[i] = b.Clone()
	}
	return out
}
