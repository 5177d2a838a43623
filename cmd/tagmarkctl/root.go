package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tagmarkapp/tagmark-server/internal/config"
	"github.com/tagmarkapp/tagmark-server/internal/di/providers"
	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/logger"
	"github.com/tagmarkapp/tagmark-server/internal/service"
	"github.com/tagmarkapp/tagmark-server/internal/store"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

// openStore opens the configured store; tests replace it.
var openStore = providers.OpenStore

type rootFlags struct {
	envFile  string
	driver   string
	dataPath string
	logLevel string
}

// configArgs translates the persistent flags into config.Load arguments so
// the CLI resolves the same env vars and .env file as the server.
func (f *rootFlags) configArgs() []string {
	args := []string{"-env-file", f.envFile, "-log-level", f.logLevel}
	if f.driver != "" {
		args = append(args, "-store", f.driver)
	}
	if f.dataPath != "" {
		args = append(args, "-data-path", f.dataPath)
	}
	return args
}

// app is the set of services one command works with.
type app struct {
	store     store.Store
	queue     *taskqueue.Queue
	tags      *service.TagLedger
	bookmarks *service.BookmarkService
	log       *logger.Logger
}

func openApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configArgs())
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Writer:      cmd.ErrOrStderr(),
		File:        cfg.Logger.File,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	})

	st, err := openStore(cfg, log.Logger)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Tasks run inline through drain; the pool is never started.
	queue := taskqueue.New(st, taskqueue.Config{
		Workers:     1,
		MaxAttempts: cfg.Tasks.MaxAttempts,
	}, log.Logger)
	ledger := service.NewTagLedger(st, queue, log.Logger)

	return &app{
		store:     st,
		queue:     queue,
		tags:      ledger,
		bookmarks: service.NewBookmarkService(st, ledger, nil, cfg.App.PageSize, log.Logger),
		log:       log,
	}, nil
}

// drain runs every ready task, including the ones the drained tasks schedule.
func (a *app) drain(ctx context.Context) (int, error) {
	return a.queue.RunPending(ctx)
}

// errIncomplete reports a scheduled operation whose task chain did not finish.
var errIncomplete = errors.New("operation incomplete")

// drainChain drains the queue and fails when a task for name with args is
// still stored afterwards, i.e. a step failed and is waiting for a retry.
func (a *app) drainChain(ctx context.Context, name string, args ...string) error {
	if _, err := a.drain(ctx); err != nil {
		return err
	}

	tasks, err := a.queue.List(ctx, "")
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Name != name || !slices.Equal(t.Args, args) {
			continue
		}
		hint := "run `tagmarkctl tasks run` to continue"
		if t.Status == domain.TaskStatusFailed {
			hint = fmt.Sprintf("run `tagmarkctl tasks retry %s` to resume", t.ID)
		}
		return fmt.Errorf("%w: task %s is %s after %d attempts (%s); %s",
			errIncomplete, t.ID, t.Status, t.Attempts, t.LastError, hint)
	}
	return nil
}

func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.log.Close())
}

// withApp opens the app for the duration of fn.
func withApp(flags *rootFlags, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(cmd, flags)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.Close())
		}()
		return fn(cmd, a, args)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "tagmarkctl",
		Short:         "Maintain a Tagmark bookmark store",
		Long:          "tagmarkctl imports, exports and repairs a Tagmark data directory without the HTTP server.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "path to .env file")
	pf.StringVar(&flags.driver, "store", "", "storage driver [badger|sqlite|memory]")
	pf.StringVar(&flags.dataPath, "data-path", "", "directory holding the bookmark database")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level [debug|info|warn|error]")

	root.AddCommand(
		newImportCmd(flags),
		newExportCmd(flags),
		newTagsCmd(flags),
		newTasksCmd(flags),
	)

	return root
}
