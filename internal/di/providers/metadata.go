package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/metadata/kyobo"
)

// KyoboClientHandle wraps the retrieval client with shutdown capability.
type KyoboClientHandle struct {
	*kyobo.Client
}

// Shutdown implements do.Shutdownable.
func (h *KyoboClientHandle) Shutdown() error {
	h.Client.Close()
	return nil
}

// ProvideKyoboClient provides the shared, rate-limited bookstore client.
func ProvideKyoboClient(i do.Injector) (*KyoboClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := kyobo.NewClient(kyobo.ClientConfig{
		Timeout:     cfg.HTTP.Timeout,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BaseDelay:   cfg.HTTP.BaseDelay,
		MaxDelay:    cfg.HTTP.MaxDelay,
		MinInterval: cfg.HTTP.MinInterval,
		UserAgents:  cfg.HTTP.UserAgents,
	}, log.Logger)

	log.Debug("Kyobo client initialized",
		"timeout", cfg.HTTP.Timeout,
		"max_retries", cfg.HTTP.MaxRetries,
		"min_interval", cfg.HTTP.MinInterval,
	)

	return &KyoboClientHandle{Client: client}, nil
}

func parserOptions(i do.Injector) []kyobo.ParserOption {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*KyoboClientHandle](i)

	return []kyobo.ParserOption{
		kyobo.WithLogger(log.Logger),
		kyobo.WithBaseURL(clientHandle.Endpoints().Product + "/"),
		kyobo.WithCoverWidth(cfg.Kyobo.CoverWidth),
		kyobo.WithRichDescriptions(cfg.Kyobo.RichDescriptions),
	}
}

// ProvideSearchParser provides the search listing parser.
func ProvideSearchParser(i do.Injector) (*kyobo.SearchParser, error) {
	return kyobo.NewSearchParser(parserOptions(i)...), nil
}

// ProvideDetailParser provides the detail page parser.
func ProvideDetailParser(i do.Injector) (*kyobo.DetailParser, error) {
	return kyobo.NewDetailParser(parserOptions(i)...), nil
}

// ProvideTOCDiscoverer provides the table of contents fallback.
func ProvideTOCDiscoverer(i do.Injector) (*kyobo.TOCDiscoverer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*KyoboClientHandle](i)

	return kyobo.NewTOCDiscoverer(clientHandle.Client, log.Logger), nil
}
