package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// errNothingImported rejects files that contained no bookmarks.
var errNothingImported = errors.New("no bookmarks found")

// Importer imports a Netscape bookmark file and reports how many bookmarks it
// created.
type Importer interface {
	ImportNetscape(ctx context.Context, r io.Reader) (int, error)
}

// Inbox imports bookmark files dropped into a directory. Imported files move
// to processed/, files that fail to import move to rejected/.
type Inbox struct {
	dir      string
	importer Importer
	watcher  *Watcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewInbox prepares dir and its processed and rejected subdirectories.
func NewInbox(dir string, importer Importer, logger *slog.Logger, opts Options) (*Inbox, error) {
	logger = logger.With("component", "inbox", "dir", dir)

	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, RejectedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	w, err := New(logger, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(dir); err != nil {
		_ = w.Stop()
		return nil, err
	}

	return &Inbox{
		dir:      filepath.Clean(dir),
		importer: importer,
		watcher:  w,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run imports files already waiting in the inbox, then every file that
// settles there, until ctx is cancelled. The watcher is stopped on return.
func (in *Inbox) Run(ctx context.Context) error {
	defer in.watcher.Stop() //nolint:errcheck // shutdown path

	in.watcher.Start(ctx)
	in.logger.Info("import inbox watching")

	if err := in.scan(ctx); err != nil {
		in.logger.Warn("initial inbox scan failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in.watcher.Events():
			if !ok {
				return nil
			}
			if ev.Type == EventAdded {
				in.handle(ctx, ev.Path)
			}
		case err, ok := <-in.watcher.Errors():
			if !ok {
				return nil
			}
			in.logger.Warn("watch error", "error", err)
		}
	}
}

// scan handles files present before the watch started.
func (in *Inbox) scan(ctx context.Context) error {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path := filepath.Join(in.dir, e.Name())
		if e.Type().IsRegular() && !in.watcher.opts.shouldIgnore(path) {
			in.handle(ctx, path)
		}
	}
	return nil
}

func (in *Inbox) handle(ctx context.Context, path string) {
	if filepath.Dir(path) != in.dir || !isBookmarkFile(path) {
		return
	}
	// Already moved by the initial scan.
	if _, err := os.Stat(path); err != nil {
		return
	}

	n, err := in.importFile(ctx, path)
	if err == nil && n == 0 {
		err = errNothingImported
	}

	// Once bookmarks were stored the file counts as processed, even if a
	// later step failed; rejecting it would invite a duplicate import.
	dest := ProcessedDir
	switch {
	case n > 0 && err != nil:
		in.logger.Warn("inbox file imported with errors", "file", filepath.Base(path), "imported", n, "error", err)
	case err != nil:
		dest = RejectedDir
		in.logger.Warn("inbox file rejected", "file", filepath.Base(path), "error", err)
	default:
		in.logger.Info("inbox file imported", "file", filepath.Base(path), "imported", n)
	}

	if err := in.move(path, dest); err != nil {
		in.logger.Error("failed to move inbox file", "file", filepath.Base(path), "to", dest, "error", err)
	}
}

func (in *Inbox) importFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return in.importer.ImportNetscape(ctx, f)
}

// move renames path into sub, prefixing a timestamp when the name is taken.
func (in *Inbox) move(path, sub string) error {
	base := filepath.Base(path)
	target := filepath.Join(in.dir, sub, base)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(in.dir, sub, in.now().UTC().Format("20060102T150405.000")+"-"+base)
	}
	return os.Rename(path, target)
}

func isBookmarkFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}
