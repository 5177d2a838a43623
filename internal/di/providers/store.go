package providers

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/samber/do/v2"

	"github.com/tagmarkapp/tagmark-server/internal/config"
	"github.com/tagmarkapp/tagmark-server/internal/logger"
	"github.com/tagmarkapp/tagmark-server/internal/store"
	"github.com/tagmarkapp/tagmark-server/internal/store/badgerdb"
	"github.com/tagmarkapp/tagmark-server/internal/store/memory"
	"github.com/tagmarkapp/tagmark-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the store selected by configuration.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	st, err := OpenStore(cfg, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Store initialized", "driver", cfg.Data.Driver, "path", cfg.StorePath())
	return &StoreHandle{Store: st}, nil
}

// OpenStore opens the configured store driver, creating the data directory
// when needed.
func OpenStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.Data.Driver {
	case config.DriverMemory:
		log.Warn("Using in-memory store; bookmarks are lost on exit")
		return memory.New(), nil
	case config.DriverBadger, config.DriverSQLite:
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Data.Driver)
	}

	if err := os.MkdirAll(cfg.Data.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	if cfg.Data.Driver == config.DriverSQLite {
		st, err := sqlite.Open(cfg.StorePath(), log)
		if err != nil {
			return nil, err
		}
		return st, nil
	}

	st, err := badgerdb.Open(cfg.StorePath(), log)
	if err != nil {
		return nil, err
	}
	return st, nil
}
