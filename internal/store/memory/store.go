// Package memory implements store.Store with in-process maps. It backs the
// memory driver and service tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

// Store is a mutex-guarded in-memory store. Records are deep-copied on the
// way in and out so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	bookmarks map[string]*domain.Bookmark
	tags      map[string]*domain.Tag
	tasks     map[string]*domain.Task
	closed    bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		bookmarks: make(map[string]*domain.Bookmark),
		tags:      make(map[string]*domain.Tag),
		tasks:     make(map[string]*domain.Task),
	}
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping fails once the store is closed.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrInvalidInput.WithMessage("store is closed")
	}
	return nil
}

func cloneBookmark(b *domain.Bookmark) *domain.Bookmark {
	c := *b
	c.Tags = slices.Clone(b.Tags)
	return &c
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Args = slices.Clone(t.Args)
	if t.StartedAt != nil {
		at := *t.StartedAt
		c.StartedAt = &at
	}
	return &c
}

// GetBookmark retrieves a bookmark by ID.
func (s *Store) GetBookmark(ctx context.Context, id string) (*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookmarks[id]
	if !ok {
		return nil, store.ErrBookmarkNotFound
	}
	return cloneBookmark(b), nil
}

// FindBookmarkByURL returns the newest bookmark with exactly url.
func (s *Store) FindBookmarkByURL(ctx context.Context, url string) (*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Bookmark
	for _, b := range s.bookmarks {
		if b.URL == url && (best == nil || store.CompareNewest(b, best) < 0) {
			best = b
		}
	}
	if best == nil {
		return nil, store.ErrBookmarkNotFound
	}
	return cloneBookmark(best), nil
}

// SaveBookmark upserts b.
func (s *Store) SaveBookmark(ctx context.Context, b *domain.Bookmark) error {
	return s.SaveBookmarks(ctx, []*domain.Bookmark{b})
}

// SaveBookmarks upserts every bookmark under one lock.
func (s *Store) SaveBookmarks(ctx context.Context, bs []*domain.Bookmark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bs {
		s.bookmarks[b.ID] = cloneBookmark(b)
	}
	return nil
}

// DeleteBookmark removes a bookmark.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookmarks[id]; !ok {
		return store.ErrBookmarkNotFound
	}
	delete(s.bookmarks, id)
	return nil
}

func (s *Store) matching(f store.BookmarkFilter) []*domain.Bookmark {
	out := []*domain.Bookmark{}
	for _, b := range s.bookmarks {
		if f.Matches(b) {
			out = append(out, b)
		}
	}
	store.SortNewest(out)
	return out
}

// QueryBookmarks returns bookmarks matching q, newest first.
func (s *Store) QueryBookmarks(ctx context.Context, q store.BookmarkQuery) ([]*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := q.Window(s.matching(q.Filter))
	out := make([]*domain.Bookmark, len(window))
	for i, b := range window {
		out[i] = cloneBookmark(b)
	}
	return out, nil
}

// CountBookmarks counts bookmarks matching f.
func (s *Store) CountBookmarks(ctx context.Context, f store.BookmarkFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.bookmarks {
		if f.Matches(b) {
			n++
		}
	}
	return n, nil
}

// GetTag retrieves a tag by name.
func (s *Store) GetTag(ctx context.Context, name string) (*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tags[name]
	if !ok {
		return nil, store.ErrTagNotFound
	}
	c := *t
	return &c, nil
}

// SaveTag upserts t.
func (s *Store) SaveTag(ctx context.Context, t *domain.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *t
	s.tags[t.Name] = &c
	return nil
}

// DeleteTag removes a tag; missing tags are ignored.
func (s *Store) DeleteTag(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tags, name)
	return nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		c := *t
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *domain.Tag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// CreateTask stores a new task.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return store.ErrAlreadyExists.WithMessage("task already exists")
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// UpdateTask overwrites an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// ListTasks returns tasks with status (all when empty) ordered by ID.
func (s *Store) ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.Task{}
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			out = append(out, cloneTask(t))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Task) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
