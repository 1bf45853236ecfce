package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/media/covers"
	"github.com/listenupapp/kyobo-metadata/internal/metadata/kyobo"
	"github.com/listenupapp/kyobo-metadata/internal/service"
	"github.com/listenupapp/kyobo-metadata/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideCoverDownloader provides the cover image downloader.
func ProvideCoverDownloader(i do.Injector) (*covers.Downloader, error) {
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*KyoboClientHandle](i)

	return covers.NewDownloader(clientHandle.Client, clientHandle.Endpoints().Product+"/", log.Logger), nil
}

// ProvideBookService provides the book search and enrichment service.
func ProvideBookService(i do.Injector) (*service.BookService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*KyoboClientHandle](i)
	searchCache := do.MustInvoke[*SearchCacheHandle](i)
	bookCache := do.MustInvoke[*BookCacheHandle](i)

	svc := service.NewBookService(
		clientHandle.Client,
		do.MustInvoke[*kyobo.SearchParser](i),
		do.MustInvoke[*kyobo.DetailParser](i),
		do.MustInvoke[*kyobo.TOCDiscoverer](i),
		do.MustInvoke[*covers.Downloader](i),
		searchCache.Cache,
		bookCache.BookCache,
		do.MustInvoke[*validation.Validator](i),
		cfg.Kyobo,
		log.Logger,
	)

	log.Debug("Book service initialized",
		"max_results", cfg.Kyobo.MaxResults,
		"detail_workers", cfg.Kyobo.DetailWorkers,
		"toc_api_first", cfg.Kyobo.PreferTOCAPI,
	)

	return svc, nil
}
