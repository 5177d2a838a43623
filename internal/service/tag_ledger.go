package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
	"github.com/tagmarkapp/tagmark-server/internal/store"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

// TagBatchSize is how many bookmarks one rename or delete step rewrites.
const TagBatchSize = 100

// Task names registered by the ledger.
const (
	TaskTagRename  = "tags.rename"
	TaskTagDelete  = "tags.delete"
	TaskTagRecount = "tags.recount"
)

// TaskScheduler is the part of the task queue the ledger depends on.
type TaskScheduler interface {
	Register(name string, h taskqueue.Handler)
	Schedule(ctx context.Context, name string, args ...string) (*domain.Task, error)
}

// TagLedger keeps Tag counts consistent with the tags embedded on bookmarks.
//
// Counts are only ever recomputed from bookmarks. Renames and deletes touch
// an unbounded number of bookmarks, so they run as chains of deferred tasks,
// each rewriting one page and scheduling the next until a page comes back
// empty.
type TagLedger struct {
	store  store.Store
	tasks  TaskScheduler
	logger *slog.Logger
}

// NewTagLedger creates a ledger and registers its task handlers.
func NewTagLedger(s store.Store, tasks TaskScheduler, logger *slog.Logger) *TagLedger {
	l := &TagLedger{
		store:  s,
		tasks:  tasks,
		logger: logger.With("component", "tag_ledger"),
	}

	tasks.Register(TaskTagRename, func(ctx context.Context, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("%s expects 2 args, got %d", TaskTagRename, len(args))
		}
		return l.Rename(ctx, args[0], args[1])
	})
	tasks.Register(TaskTagDelete, func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s expects 1 arg, got %d", TaskTagDelete, len(args))
		}
		return l.Delete(ctx, args[0])
	})
	tasks.Register(TaskTagRecount, func(ctx context.Context, args []string) error {
		return l.RecountMany(ctx, args)
	})

	return l
}

// Recount sets the tag's count to the number of bookmarks carrying it,
// deleting the record when none do.
func (l *TagLedger) Recount(ctx context.Context, name string) error {
	n, err := l.store.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{name}})
	if err != nil {
		return fmt.Errorf("count bookmarks tagged %q: %w", name, err)
	}

	if n == 0 {
		if err := l.store.DeleteTag(ctx, name); err != nil {
			return fmt.Errorf("delete tag %q: %w", name, err)
		}
		l.logger.Debug("tag removed", "tag", name)
		return nil
	}

	t := &domain.Tag{Name: name, Count: n}
	t.Touch()
	if err := l.store.SaveTag(ctx, t); err != nil {
		return fmt.Errorf("save tag %q: %w", name, err)
	}
	l.logger.Debug("tag recounted", "tag", name, "count", n)
	return nil
}

// RecountMany recounts each distinct name, continuing past failures and
// returning them joined.
func (l *TagLedger) RecountMany(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range domain.UnionTags(names) {
		if err := l.Recount(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecountOrDefer recounts names now and, if that fails, hands the recount to
// the task queue so the counts still converge.
func (l *TagLedger) RecountOrDefer(ctx context.Context, names []string) error {
	names = domain.UnionTags(names)
	if len(names) == 0 {
		return nil
	}

	err := l.RecountMany(ctx, names)
	if err == nil {
		return nil
	}

	l.logger.Warn("recount failed, deferring", "tags", names, "error", err)
	if _, serr := l.tasks.Schedule(context.WithoutCancel(ctx), TaskTagRecount, names...); serr != nil {
		return errors.Join(err, serr)
	}
	return nil
}

// RecountAll recounts every known tag plus every tag found on bookmarks.
func (l *TagLedger) RecountAll(ctx context.Context) (int, error) {
	tags, err := l.store.ListTags(ctx)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}

	bms, err := l.store.QueryBookmarks(ctx, store.BookmarkQuery{})
	if err != nil {
		return 0, err
	}
	for _, b := range bms {
		names = append(names, b.Tags...)
	}

	names = domain.UnionTags(names)
	return len(names), l.RecountMany(ctx, names)
}

// ListTags returns every tag record ordered by name.
func (l *TagLedger) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	return l.store.ListTags(ctx)
}

// Rename performs one step of renaming from to to: it rewrites up to
// TagBatchSize bookmarks and schedules the next step, or finishes the
// operation when no bookmark carries from any more.
func (l *TagLedger) Rename(ctx context.Context, from, to string) error {
	if from == to {
		return l.Recount(ctx, to)
	}
	return l.step(ctx, from, to, TaskTagRename)
}

// Delete performs one step of removing name from every bookmark.
func (l *TagLedger) Delete(ctx context.Context, name string) error {
	return l.step(ctx, name, "", TaskTagDelete)
}

func (l *TagLedger) step(ctx context.Context, from, to, task string) error {
	page, err := l.store.QueryBookmarks(ctx, store.BookmarkQuery{
		Filter: store.BookmarkFilter{Tags: []string{from}},
		Limit:  TagBatchSize,
	})
	if err != nil {
		return fmt.Errorf("load bookmarks tagged %q: %w", from, err)
	}

	if len(page) == 0 {
		return l.finish(ctx, from, to)
	}

	for _, b := range page {
		b.RemoveTag(from)
		if to != "" {
			b.AddTag(to)
		}
	}
	if err := l.store.SaveBookmarks(ctx, page); err != nil {
		return fmt.Errorf("rewrite bookmarks tagged %q: %w", from, err)
	}

	args := []string{from}
	if to != "" {
		args = append(args, to)
	}
	if _, err := l.tasks.Schedule(ctx, task, args...); err != nil {
		return fmt.Errorf("schedule next %s step: %w", task, err)
	}

	l.logger.Info("tag batch rewritten", "task", task, "from", from, "to", to, "bookmarks", len(page))
	return nil
}

func (l *TagLedger) finish(ctx context.Context, from, to string) error {
	if err := l.store.DeleteTag(ctx, from); err != nil {
		return fmt.Errorf("delete tag %q: %w", from, err)
	}
	if to != "" {
		// The destination count is corrected once, after every page moved.
		if err := l.Recount(ctx, to); err != nil {
			return err
		}
	}
	l.logger.Info("tag operation complete", "from", from, "to", to)
	return nil
}

// ScheduleRename starts renaming from to to in the background. An empty to
// deletes the tag instead; renaming a tag onto itself only recounts it.
func (l *TagLedger) ScheduleRename(ctx context.Context, from, to string) error {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if to == "" {
		return l.ScheduleDelete(ctx, from)
	}
	if err := validateTagName("from", from); err != nil {
		return err
	}
	if err := validateTagName("to", to); err != nil {
		return err
	}
	if from == to {
		return l.RecountOrDefer(ctx, []string{to})
	}

	if _, err := l.tasks.Schedule(ctx, TaskTagRename, from, to); err != nil {
		return err
	}
	l.logger.Info("tag rename scheduled", "from", from, "to", to)
	return nil
}

// ScheduleDelete starts removing name from every bookmark in the background.
func (l *TagLedger) ScheduleDelete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := validateTagName("name", name); err != nil {
		return err
	}

	if _, err := l.tasks.Schedule(ctx, TaskTagDelete, name); err != nil {
		return err
	}
	l.logger.Info("tag delete scheduled", "tag", name)
	return nil
}

func validateTagName(field, name string) error {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return domainerrors.ValidationWithDetails("invalid tag name", map[string]string{
			field: "must be a single word without spaces",
		})
	}
	return nil
}
