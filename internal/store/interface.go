// Package store defines the persistence contract for bookmarks, tag counts and
// deferred tasks. Implementations live in the badgerdb, sqlite and memory
// subpackages and share the storetest conformance suite.
package store

import (
	"context"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

// Store defines all persistence operations.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error

	// Bookmarks
	GetBookmark(ctx context.Context, id string) (*domain.Bookmark, error)
	// FindBookmarkByURL returns the newest bookmark with exactly this URL.
	FindBookmarkByURL(ctx context.Context, url string) (*domain.Bookmark, error)
	SaveBookmark(ctx context.Context, b *domain.Bookmark) error
	// SaveBookmarks upserts all bookmarks in one logical write.
	SaveBookmarks(ctx context.Context, bs []*domain.Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error
	// QueryBookmarks returns bookmarks carrying every filter tag, newest first.
	QueryBookmarks(ctx context.Context, q BookmarkQuery) ([]*domain.Bookmark, error)
	CountBookmarks(ctx context.Context, f BookmarkFilter) (int, error)

	// Tags
	GetTag(ctx context.Context, name string) (*domain.Tag, error)
	SaveTag(ctx context.Context, t *domain.Tag) error
	// DeleteTag is idempotent: deleting a missing tag is not an error.
	DeleteTag(ctx context.Context, name string) error
	ListTags(ctx context.Context) ([]*domain.Tag, error)

	// Tasks
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	// ListTasks returns tasks in creation order. An empty status lists all.
	ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error)
}
