// Package di provides dependency injection configuration for the Kyobo metadata service.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/di/providers"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/media/covers"
	"github.com/listenupapp/kyobo-metadata/internal/metadata/kyobo"
	"github.com/listenupapp/kyobo-metadata/internal/service"
	"github.com/listenupapp/kyobo-metadata/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
// A nil cfg is loaded from the environment on first use.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	if cfg != nil {
		do.ProvideValue(injector, cfg)
	} else {
		do.Provide(injector, providers.ProvideConfig)
	}
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Retrieval layer
	do.Provide(injector, providers.ProvideKyoboClient)
	do.Provide(injector, providers.ProvideSearchParser)
	do.Provide(injector, providers.ProvideDetailParser)
	do.Provide(injector, providers.ProvideTOCDiscoverer)
	do.Provide(injector, providers.ProvideCoverDownloader)

	// Cache layer
	do.Provide(injector, providers.ProvideSearchCache)
	do.Provide(injector, providers.ProvideBookCache)

	// Business services
	do.Provide(injector, providers.ProvideBookService)

	return injector
}

// Bootstrap initializes all services.
// This triggers lazy initialization so configuration errors surface early.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.KyoboClientHandle](injector)
	_ = do.MustInvoke[*kyobo.SearchParser](injector)
	_ = do.MustInvoke[*kyobo.DetailParser](injector)
	_ = do.MustInvoke[*kyobo.TOCDiscoverer](injector)
	_ = do.MustInvoke[*covers.Downloader](injector)
	_ = do.MustInvoke[*providers.SearchCacheHandle](injector)
	_ = do.MustInvoke[*providers.BookCacheHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.BookService](injector)

	return nil
}
