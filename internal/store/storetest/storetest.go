// Package storetest is a conformance suite every store.Store implementation
// runs from its own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"GetMissingBookmark", testGetMissingBookmark},
		{"SaveAndGetBookmark", testSaveAndGetBookmark},
		{"UpsertReplacesIndexes", testUpsertReplacesIndexes},
		{"FindByURLPrefersNewest", testFindByURLPrefersNewest},
		{"QueryOrderAndWindow", testQueryOrderAndWindow},
		{"QueryANDFilter", testQueryANDFilter},
		{"SaveBookmarksBatch", testSaveBookmarksBatch},
		{"DeleteBookmark", testDeleteBookmark},
		{"Tags", testTags},
		{"Tasks", testTasks},
		{"CanceledContext", testCanceledContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func bm(id, url string, minutes int, tags ...string) *domain.Bookmark {
	if tags == nil {
		tags = []string{}
	}
	return &domain.Bookmark{
		ID:    id,
		URL:   url,
		Title: "Title " + id,
		Tags:  tags,
		Time:  base.Add(time.Duration(minutes) * time.Minute),
	}
}

func ids(bs []*domain.Bookmark) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func testGetMissingBookmark(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetBookmark(ctx, "bm-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindBookmarkByURL(ctx, "http://missing.test")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteBookmark(ctx, "bm-missing"), store.ErrNotFound)
}

func testSaveAndGetBookmark(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := bm("bm-1", "http://x.com", 0, "go", "web")
	b.Desc = "a description"

	require.NoError(t, s.SaveBookmark(ctx, b))

	got, err := s.GetBookmark(ctx, "bm-1")
	require.NoError(t, err)
	assert.Equal(t, "http://x.com", got.URL)
	assert.Equal(t, "Title bm-1", got.Title)
	assert.Equal(t, "a description", got.Desc)
	assert.Equal(t, []string{"go", "web"}, got.Tags, "tag order is preserved")
	assert.True(t, b.Time.Equal(got.Time))

	found, err := s.FindBookmarkByURL(ctx, "http://x.com")
	require.NoError(t, err)
	assert.Equal(t, "bm-1", found.ID)

	require.NoError(t, s.Ping(ctx))
}

func testUpsertReplacesIndexes(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := bm("bm-1", "http://old.test", 0, "a", "b")
	require.NoError(t, s.SaveBookmark(ctx, b))

	b.URL = "http://new.test"
	b.Tags = []string{"b", "c"}
	require.NoError(t, s.SaveBookmark(ctx, b))

	n, err := s.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Zero(t, n, "old tag no longer matches")

	n, err = s.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.FindBookmarkByURL(ctx, "http://old.test")
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := s.QueryBookmarks(ctx, store.BookmarkQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testFindByURLPrefersNewest(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveBookmarks(ctx, []*domain.Bookmark{
		bm("bm-old", "http://dup.test", 1),
		bm("bm-new", "http://dup.test", 5),
		bm("bm-other", "http://dup.test/other", 9),
	}))

	got, err := s.FindBookmarkByURL(ctx, "http://dup.test")
	require.NoError(t, err)
	assert.Equal(t, "bm-new", got.ID)
}

func testQueryOrderAndWindow(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveBookmarks(ctx, []*domain.Bookmark{
		bm("bm-a", "http://a.test", 1),
		bm("bm-c", "http://c.test", 3),
		bm("bm-b", "http://b.test", 2),
		bm("bm-b2", "http://b2.test", 2),
	}))

	all, err := s.QueryBookmarks(ctx, store.BookmarkQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bm-c", "bm-b", "bm-b2", "bm-a"}, ids(all), "newest first, ties by id")

	page, err := s.QueryBookmarks(ctx, store.BookmarkQuery{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"bm-b", "bm-b2"}, ids(page))

	empty, err := s.QueryBookmarks(ctx, store.BookmarkQuery{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func testQueryANDFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveBookmarks(ctx, []*domain.Bookmark{
		bm("bm-1", "http://1.test", 1, "a"),
		bm("bm-2", "http://2.test", 2, "a", "b"),
		bm("bm-3", "http://3.test", 3, "b"),
		bm("bm-4", "http://4.test", 4, "b", "a", "c"),
		bm("bm-5", "http://5.test", 5, "ab"),
	}))

	got, err := s.QueryBookmarks(ctx, store.BookmarkQuery{Filter: store.BookmarkFilter{Tags: []string{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bm-4", "bm-2"}, ids(got))

	got, err = s.QueryBookmarks(ctx, store.BookmarkQuery{Filter: store.BookmarkFilter{Tags: []string{"a", "a"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bm-4", "bm-2", "bm-1"}, ids(got), "duplicate filter tags collapse, no prefix match")

	n, err := s.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{"zzz"}})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CountBookmarks(ctx, store.BookmarkFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func testSaveBookmarksBatch(t *testing.T, s store.Store) {
	ctx := context.Background()

	const total = 1203
	bs := make([]*domain.Bookmark, total)
	for i := range bs {
		bs[i] = bm(fmt.Sprintf("bm-%05d", i), fmt.Sprintf("http://%d.test", i), i, "bulk")
	}
	require.NoError(t, s.SaveBookmarks(ctx, bs))

	n, err := s.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{"bulk"}})
	require.NoError(t, err)
	assert.Equal(t, total, n)

	require.NoError(t, s.SaveBookmarks(ctx, nil))
}

func testDeleteBookmark(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveBookmark(ctx, bm("bm-1", "http://x.com", 0, "go")))

	require.NoError(t, s.DeleteBookmark(ctx, "bm-1"))

	_, err := s.GetBookmark(ctx, "bm-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindBookmarkByURL(ctx, "http://x.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
	n, err := s.CountBookmarks(ctx, store.BookmarkFilter{Tags: []string{"go"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testTags(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetTag(ctx, "go")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveTag(ctx, &domain.Tag{Name: "web", Count: 2, UpdatedAt: base}))
	require.NoError(t, s.SaveTag(ctx, &domain.Tag{Name: "go", Count: 1, UpdatedAt: base}))
	require.NoError(t, s.SaveTag(ctx, &domain.Tag{Name: "go", Count: 4, UpdatedAt: base.Add(time.Hour)}))

	got, err := s.GetTag(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Count)
	assert.True(t, base.Add(time.Hour).Equal(got.UpdatedAt))

	list, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "go", list[0].Name)
	assert.Equal(t, "web", list[1].Name)

	require.NoError(t, s.DeleteTag(ctx, "go"))
	require.NoError(t, s.DeleteTag(ctx, "go"), "delete is idempotent")

	list, err = s.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testTasks(t *testing.T, s store.Store) {
	ctx := context.Background()

	mk := func(id string, status domain.TaskStatus) *domain.Task {
		return &domain.Task{
			ID:        id,
			Name:      "tags.rename",
			Args:      []string{"from", "to"},
			Status:    status,
			CreatedAt: base,
			RunAfter:  base,
		}
	}

	require.NoError(t, s.CreateTask(ctx, mk("0002", domain.TaskStatusPending)))
	require.NoError(t, s.CreateTask(ctx, mk("0001", domain.TaskStatusPending)))
	require.NoError(t, s.CreateTask(ctx, mk("0003", domain.TaskStatusFailed)))
	assert.ErrorIs(t, s.CreateTask(ctx, mk("0001", domain.TaskStatusPending)), store.ErrAlreadyExists)

	pending, err := s.ListTasks(ctx, domain.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "0001", pending[0].ID)
	assert.Equal(t, []string{"from", "to"}, pending[0].Args)

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	task, err := s.GetTask(ctx, "0002")
	require.NoError(t, err)
	task.MarkRunning()
	require.NoError(t, s.UpdateTask(ctx, task))

	got, err := s.GetTask(ctx, "0002")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, s.DeleteTask(ctx, "0002"))
	_, err = s.GetTask(ctx, "0002")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTask(ctx, "0002"), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTask(ctx, mk("nope", domain.TaskStatusPending)), store.ErrNotFound)
}

func testCanceledContext(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.SaveBookmark(ctx, bm("bm-1", "http://x.com", 0)))
	_, err := s.QueryBookmarks(ctx, store.BookmarkQuery{})
	assert.Error(t, err)
}
