package providers

import (
	"github.com/samber/do/v2"

	"github.com/tagmarkapp/tagmark-server/internal/config"
	"github.com/tagmarkapp/tagmark-server/internal/logger"
	"github.com/tagmarkapp/tagmark-server/internal/scraper"
	"github.com/tagmarkapp/tagmark-server/internal/service"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

// ProvideTaskQueue provides the deferred task queue. Workers are started by
// ProvideTaskWorkers once every handler is registered.
func ProvideTaskQueue(i do.Injector) (*taskqueue.Queue, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return taskqueue.New(storeHandle.Store, taskqueue.Config{
		Workers:      cfg.Tasks.Workers,
		MaxAttempts:  cfg.Tasks.MaxAttempts,
		PollInterval: cfg.Tasks.PollInterval,
	}, log.Logger), nil
}

// ProvideTagLedger provides the tag ledger and registers its task handlers.
func ProvideTagLedger(i do.Injector) (*service.TagLedger, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	queue := do.MustInvoke[*taskqueue.Queue](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTagLedger(storeHandle.Store, queue, log.Logger), nil
}

// ScraperHandle wraps the title scraper with shutdown capability.
type ScraperHandle struct {
	*scraper.Scraper
}

// Shutdown implements do.Shutdownable.
func (h *ScraperHandle) Shutdown() error {
	if h.Scraper != nil {
		h.Close()
	}
	return nil
}

// ProvideScraper provides the page title scraper. The handle is empty when
// scraping is disabled.
func ProvideScraper(i do.Injector) (*ScraperHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Scraper.Enabled {
		log.Info("Title scraping disabled by configuration")
		return &ScraperHandle{}, nil
	}

	s := scraper.New(scraper.Config{
		Timeout: cfg.Scraper.Timeout,
		HostRPS: float64(cfg.Scraper.HostRPS),
	}, log.Logger)

	return &ScraperHandle{Scraper: s}, nil
}

// ProvideBookmarkService provides the bookmark repository.
func ProvideBookmarkService(i do.Injector) (*service.BookmarkService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	ledger := do.MustInvoke[*service.TagLedger](i)
	scraperHandle := do.MustInvoke[*ScraperHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	var titles service.TitleFetcher
	if scraperHandle.Scraper != nil {
		titles = scraperHandle.Scraper
	}

	return service.NewBookmarkService(storeHandle.Store, ledger, titles, cfg.App.PageSize, log.Logger), nil
}
