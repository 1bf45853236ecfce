// Package providers contains dependency injection providers for the Kyobo metadata service.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/kyobo-metadata/internal/config"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
)

// ProvideConfig provides the application configuration from the environment
// and .env file. Callers that parse flags register their config with
// do.ProvideValue instead.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load(nil)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("Starting Kyobo metadata service",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"min_interval", cfg.HTTP.MinInterval,
		"detail_workers", cfg.Kyobo.DetailWorkers,
	)

	return log, nil
}
