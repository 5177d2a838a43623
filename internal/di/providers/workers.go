package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/tagmarkapp/tagmark-server/internal/config"
	"github.com/tagmarkapp/tagmark-server/internal/logger"
	"github.com/tagmarkapp/tagmark-server/internal/service"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
	"github.com/tagmarkapp/tagmark-server/internal/watcher"
)

// TaskWorkersHandle owns the running task workers.
type TaskWorkersHandle struct {
	*taskqueue.Queue
}

// Shutdown implements do.Shutdownable.
func (h *TaskWorkersHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideTaskWorkers starts the task workers after the tag ledger has
// registered its handlers.
func ProvideTaskWorkers(i do.Injector) (*TaskWorkersHandle, error) {
	queue := do.MustInvoke[*taskqueue.Queue](i)
	_ = do.MustInvoke[*service.TagLedger](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	queue.Start()
	log.Info("Task workers started", "workers", cfg.Tasks.Workers)

	return &TaskWorkersHandle{Queue: queue}, nil
}

// InboxWatcherHandle wraps the import inbox with shutdown capability.
type InboxWatcherHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *InboxWatcherHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(shutdownTimeout):
	}
	return nil
}

// ProvideInboxWatcher starts importing bookmark files dropped into the
// configured inbox directory. The handle is inert when no inbox is set.
func ProvideInboxWatcher(i do.Injector) (*InboxWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bookmarks := do.MustInvoke[*service.BookmarkService](i)

	if cfg.Inbox.Path == "" {
		log.Info("Import inbox disabled by configuration")
		return &InboxWatcherHandle{}, nil
	}

	inbox, err := watcher.NewInbox(cfg.Inbox.Path, bookmarks, log.Logger, watcher.Options{})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := inbox.Run(ctx); err != nil {
			log.Error("Import inbox stopped", "error", err)
		}
	}()

	log.Info("Import inbox started", "path", cfg.Inbox.Path)

	return &InboxWatcherHandle{cancel: cancel, done: done}, nil
}
