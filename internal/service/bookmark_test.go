package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

type stubTitles map[string]string

func (s stubTitles) FetchTitle(_ context.Context, url string) string {
	return s[url]
}

func TestCreate_NormalizesInput(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})

	b, err := f.service.Create(context.Background(), domain.BookmarkInput{
		URL:  "  example.com/path ",
		Tags: []string{"go go", "web", "go"},
		Desc: "  notes ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "http://example.com/path", b.URL)
	assert.Equal(t, "http://example.com/path", b.Title, "empty title falls back to the URL")
	assert.Equal(t, "notes", b.Desc)
	assert.Equal(t, []string{"go", "web"}, b.Tags)
	assert.False(t, b.Time.IsZero())

	assert.Equal(t, 1, f.tagCount(t, "go"))
	assert.Equal(t, 1, f.tagCount(t, "web"))
}

func TestCreate_Duplicate(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	first := f.mustCreate(t, "https://go.dev", "go")

	_, err := f.service.Create(ctx, domain.BookmarkInput{URL: "https://go.dev", Tags: []string{"other"}})
	require.Error(t, err)

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.Existing.ID)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	details, ok := domainErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first.ID, details["existing"].(*domain.Bookmark).ID)

	assert.Equal(t, 0, f.tagCount(t, "other"), "rejected create touches no tags")
}

func TestCreate_InvalidURL(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})

	for _, raw := range []string{"", "   ", "not a url", "http://localhost", "mailto:me@example.com"} {
		_, err := f.service.Create(context.Background(), domain.BookmarkInput{URL: raw})
		assert.ErrorIs(t, err, domainerrors.ErrValidation, "%q", raw)
	}
}

func TestUpdate_RecountsOldAndNewTags(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	orig := f.mustCreate(t, "https://a.example.com", "a", "b")
	f.mustCreate(t, "https://b.example.com", "b")

	got, err := f.service.Update(ctx, "https://a.example.com", BookmarkUpdate{
		Title: "Renamed",
		Tags:  []string{"b", "c"},
	})
	require.NoError(t, err)

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, orig.Time, got.Time, "creation time never changes")

	assert.Equal(t, 0, f.tagCount(t, "a"))
	assert.Equal(t, 2, f.tagCount(t, "b"))
	assert.Equal(t, 1, f.tagCount(t, "c"))

	stored, err := f.service.FindByURL(ctx, "https://a.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, stored.Tags)
}

func TestUpdate_EmptyTitleFallsBackToURL(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	f.mustCreate(t, "https://a.example.com")

	got, err := f.service.Update(context.Background(), "https://a.example.com", BookmarkUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com", got.Title)
}

func TestUpdateAndDelete_UnknownURL(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	_, err := f.service.Update(ctx, "https://missing.example.com", BookmarkUpdate{})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	assert.ErrorIs(t, f.service.Delete(ctx, "https://missing.example.com"), domainerrors.ErrNotFound)
}

func TestDelete_RecountsTags(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	f.mustCreate(t, "https://a.example.com", "solo", "shared")
	f.mustCreate(t, "https://b.example.com", "shared")

	require.NoError(t, f.service.Delete(ctx, "https://a.example.com"))

	assert.Equal(t, 0, f.tagCount(t, "solo"))
	assert.Equal(t, 1, f.tagCount(t, "shared"))

	_, err := f.service.FindByURL(ctx, "https://a.example.com")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestBulkImport_AllowsDuplicatesAndRecountsOnce(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	f.mustCreate(t, "https://dup.example.com", "x")
	added := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)

	n, err := f.service.BulkImport(ctx, []domain.BookmarkInput{
		{URL: "https://dup.example.com", Tags: []string{"x", "y"}, Time: added},
		{URL: "https://dup.example.com", Tags: []string{"y"}},
		{URL: "  ", Tags: []string{"skipped"}},
		{URL: "https://new.example.com", Title: "New"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, 2, f.tagCount(t, "x"))
	assert.Equal(t, 2, f.tagCount(t, "y"))
	assert.Equal(t, 0, f.tagCount(t, "skipped"))

	page, err := f.service.List(ctx, ListOptions{Tags: []string{"y"}})
	require.NoError(t, err)
	require.Len(t, page.Bookmarks, 2)
	assert.Equal(t, added, page.Bookmarks[1].Time, "record time is kept")
	assert.Equal(t, "https://dup.example.com", page.Bookmarks[1].Title)
}

func TestBulkImport_NormalizesValidURLs(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	n, err := f.service.BulkImport(ctx, []domain.BookmarkInput{
		{URL: "example.org/docs", Tags: []string{"ref"}},
		{URL: "not a url", Tags: []string{"ref"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := f.service.FindByURL(ctx, "example.org/docs")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/docs", b.URL)
	assert.Equal(t, "http://example.org/docs", b.Title)

	b, err = f.service.FindByURL(ctx, "http://example.org/docs")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/docs", b.URL)

	raw, err := f.service.FindByURL(ctx, "not a url")
	require.NoError(t, err, "invalid URLs stay reachable as stored")
	assert.Equal(t, "not a url", raw.URL)
}

func TestBulkImport_Empty(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})

	n, err := f.service.BulkImport(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList_PagesNewestFirst(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	for i := range 120 {
		tags := []string{"all"}
		if i%2 == 0 {
			tags = append(tags, "even")
		}
		f.mustCreate(t, fmt.Sprintf("https://n%d.example.com", i), tags...)
	}

	first, err := f.service.List(ctx, ListOptions{Tags: []string{"all"}})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, DefaultPageSize, first.PageSize)
	assert.Equal(t, 3, first.PageCount)
	assert.Equal(t, 120, first.Total)
	require.Len(t, first.Bookmarks, 50)
	assert.Equal(t, "https://n119.example.com", first.Bookmarks[0].URL)
	for i := 1; i < len(first.Bookmarks); i++ {
		assert.True(t, first.Bookmarks[i-1].Time.After(first.Bookmarks[i].Time))
	}

	last, err := f.service.List(ctx, ListOptions{Tags: []string{"all"}, Page: 3})
	require.NoError(t, err)
	assert.Len(t, last.Bookmarks, 20)

	past, err := f.service.List(ctx, ListOptions{Tags: []string{"all"}, Page: 4})
	require.NoError(t, err)
	assert.Empty(t, past.Bookmarks)
	assert.Equal(t, 3, past.PageCount)

	both, err := f.service.List(ctx, ListOptions{Tags: []string{"even", "all"}, PageSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 60, both.Total)
	assert.Equal(t, 1, both.PageCount)
	for _, b := range both.Bookmarks {
		assert.True(t, b.HasAllTags([]string{"even", "all"}))
	}

	clamped, err := f.service.List(ctx, ListOptions{Page: -3, PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, MaxPageSize, clamped.PageSize)
}

func TestList_EmptyStoreHasOnePage(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})

	page, err := f.service.List(context.Background(), ListOptions{Tags: []string{"none"}})
	require.NoError(t, err)
	assert.Empty(t, page.Bookmarks)
	assert.Equal(t, 1, page.PageCount)
	assert.Zero(t, page.Total)
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 50, 1},
		{1, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{100, 50, 2},
		{101, 50, 3},
		{7, 0, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageCount(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}

func TestSuggest(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()
	f.service.titles = stubTitles{"http://fresh.example.com": "Fresh Page"}

	existing := f.mustCreate(t, "https://saved.example.com", "go")

	got, err := f.service.Suggest(ctx, "https://saved.example.com")
	require.NoError(t, err)
	require.NotNil(t, got.Existing)
	assert.Equal(t, existing.ID, got.Existing.ID)

	got, err = f.service.Suggest(ctx, "fresh.example.com")
	require.NoError(t, err)
	assert.Nil(t, got.Existing)
	assert.Equal(t, "http://fresh.example.com", got.URL)
	assert.Equal(t, "Fresh Page", got.Title)

	got, err = f.service.Suggest(ctx, "https://untitled.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://untitled.example.com", got.Title)

	_, err = f.service.Suggest(ctx, "nope")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestNetscapeRoundTrip(t *testing.T) {
	src := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	src.mustCreate(t, "https://a.example.com", "go", "web")
	src.mustCreate(t, "https://b.example.com")
	src.mustCreate(t, "https://c.example.com", "web")

	var buf bytes.Buffer
	n, err := src.service.ExportNetscape(ctx, &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := newFixture(t, taskqueue.Config{})
	imported, err := dst.service.ImportNetscape(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	assert.Equal(t, 1, dst.tagCount(t, "go"))
	assert.Equal(t, 2, dst.tagCount(t, "web"))

	b, err := dst.service.FindByURL(ctx, "https://a.example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"go", "web"}, b.Tags)
}

func TestNetscapeRoundTrip_TagWithComma(t *testing.T) {
	src := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	src.mustCreate(t, "https://a.example.com", "c++,go")

	var buf bytes.Buffer
	_, err := src.service.ExportNetscape(ctx, &buf, nil)
	require.NoError(t, err)

	dst := newFixture(t, taskqueue.Config{})
	_, err = dst.service.ImportNetscape(ctx, &buf)
	require.NoError(t, err)

	b, err := dst.service.FindByURL(ctx, "https://a.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"c++,go"}, b.Tags)

	assert.Equal(t, 1, dst.tagCount(t, "c++,go"))
	assert.Equal(t, 0, dst.tagCount(t, "c++"))
	assert.Equal(t, 0, dst.tagCount(t, "go"))
}

func TestExport_FiltersByTags(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})
	ctx := context.Background()

	f.mustCreate(t, "https://a.example.com", "go", "web")
	f.mustCreate(t, "https://b.example.com", "go")

	got, err := f.service.Export(ctx, []string{"go", "web"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.example.com", got[0].URL)
}

func TestImportNetscape_IgnoresOtherFormats(t *testing.T) {
	f := newFixture(t, taskqueue.Config{})

	n, err := f.service.ImportNetscape(context.Background(), strings.NewReader(`{"not": "html"}`))
	require.NoError(t, err)
	assert.Zero(t, n)
}
