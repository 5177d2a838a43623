// Package di provides dependency injection configuration for the Tagmark server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/tagmarkapp/tagmark-server/internal/config"
	"github.com/tagmarkapp/tagmark-server/internal/di/providers"
	"github.com/tagmarkapp/tagmark-server/internal/logger"
	"github.com/tagmarkapp/tagmark-server/internal/service"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideStore)

	// Tasks and business services
	do.Provide(injector, providers.ProvideTaskQueue)
	do.Provide(injector, providers.ProvideTagLedger)
	do.Provide(injector, providers.ProvideScraper)
	do.Provide(injector, providers.ProvideBookmarkService)

	// Workers
	do.Provide(injector, providers.ProvideTaskWorkers)
	do.Provide(injector, providers.ProvideInboxWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns once the HTTP server is
// listening in the background.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)

	_ = do.MustInvoke[*taskqueue.Queue](injector)
	_ = do.MustInvoke[*service.TagLedger](injector)
	_ = do.MustInvoke[*providers.ScraperHandle](injector)
	_ = do.MustInvoke[*service.BookmarkService](injector)

	// Workers
	_ = do.MustInvoke[*providers.TaskWorkersHandle](injector)
	_ = do.MustInvoke[*providers.InboxWatcherHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	return nil
}
