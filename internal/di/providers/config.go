// Package providers contains dependency injection providers for the Tagmark server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/tagmarkapp/tagmark-server/internal/config"
	"github.com/tagmarkapp/tagmark-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger. The caller closes it after
// the injector has shut down so shutdown itself is still logged.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := NewLogger(cfg)
	log.Info("Starting Tagmark Server",
		"version", config.Version,
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"store", cfg.Data.Driver,
		"data_path", cfg.Data.Path,
	)

	return log, nil
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		File:        cfg.Logger.File,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})
}
