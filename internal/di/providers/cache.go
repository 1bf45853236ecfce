package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/kyobo-metadata/internal/cache"
	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/domain"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
)

// SearchCacheHandle wraps the search result cache with shutdown capability.
type SearchCacheHandle struct {
	*cache.Cache[[]domain.Book]
}

// Shutdown implements do.Shutdownable.
func (h *SearchCacheHandle) Shutdown() error {
	h.Cache.Stop()
	return nil
}

// ProvideSearchCache provides the search result cache.
func ProvideSearchCache(i do.Injector) (*SearchCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	c := cache.New[[]domain.Book](cache.Options{
		Name:          "search",
		Capacity:      cfg.Cache.SearchCapacity,
		TTL:           cfg.Cache.SearchTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        log.Logger,
	})

	return &SearchCacheHandle{Cache: c}, nil
}

// BookCacheHandle wraps the detail record cache with shutdown capability.
type BookCacheHandle struct {
	*cache.BookCache
}

// Shutdown implements do.Shutdownable.
func (h *BookCacheHandle) Shutdown() error {
	h.BookCache.Stop()
	return nil
}

// ProvideBookCache provides the detail record cache.
func ProvideBookCache(i do.Injector) (*BookCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	c := cache.NewBookCache(cache.Options{
		Capacity:      cfg.Cache.DetailCapacity,
		TTL:           cfg.Cache.DetailTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        log.Logger,
	})

	return &BookCacheHandle{BookCache: c}, nil
}
