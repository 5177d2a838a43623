package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
	"github.com/tagmarkapp/tagmark-server/internal/id"
	"github.com/tagmarkapp/tagmark-server/internal/netscape"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

// Page sizing.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// TitleFetcher looks up a page title. Implementations never fail; they fall
// back to the URL itself.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, url string) string
}

// DuplicateError reports that a bookmark for URL already exists.
type DuplicateError struct {
	URL      string
	Existing *domain.Bookmark
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("bookmark already exists for %s", e.URL)
}

// Unwrap exposes the ALREADY_EXISTS domain error carrying the existing bookmark.
func (e *DuplicateError) Unwrap() error {
	return domainerrors.AlreadyExistsf("bookmark already exists for %s", e.URL).
		WithDetails(map[string]any{"existing": e.Existing})
}

// BookmarkUpdate is the mutable content of a bookmark.
type BookmarkUpdate struct {
	Title string
	Desc  string
	Tags  []string
}

// ListOptions selects one page of bookmarks carrying all of Tags.
type ListOptions struct {
	Tags     []string
	Page     int
	PageSize int
}

// BookmarkPage is one page of a tag-filtered listing.
type BookmarkPage struct {
	Bookmarks []*domain.Bookmark `json:"bookmarks"`
	Tags      []string           `json:"tags"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
	PageCount int                `json:"page_count"`
	Total     int                `json:"total"`
}

// Suggestion pre-fills the new-bookmark form.
type Suggestion struct {
	URL      string           `json:"url"`
	Title    string           `json:"title"`
	Existing *domain.Bookmark `json:"existing,omitempty"`
}

// BookmarkService is the bookmark repository: every write keeps the tag
// ledger in step with the tags it adds or removes.
type BookmarkService struct {
	store    store.Store
	ledger   *TagLedger
	titles   TitleFetcher
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// NewBookmarkService creates a bookmark service. titles may be nil, in which
// case suggestions use the URL as the title.
func NewBookmarkService(s store.Store, ledger *TagLedger, titles TitleFetcher, pageSize int, logger *slog.Logger) *BookmarkService {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &BookmarkService{
		store:    s,
		ledger:   ledger,
		titles:   titles,
		logger:   logger.With("component", "bookmarks"),
		pageSize: min(pageSize, MaxPageSize),
		now:      time.Now,
	}
}

// Create stores a new bookmark. It returns *DuplicateError when the URL is
// already bookmarked.
//
// The duplicate check is a lookup, not a constraint: two concurrent creates
// of the same URL can both succeed.
func (s *BookmarkService) Create(ctx context.Context, in domain.BookmarkInput) (*domain.Bookmark, error) {
	url, err := NormalizeURL(in.URL)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindBookmarkByURL(ctx, url)
	switch {
	case err == nil:
		return nil, &DuplicateError{URL: url, Existing: existing}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	bid, err := id.Bookmark()
	if err != nil {
		return nil, err
	}

	b := &domain.Bookmark{
		ID:    bid,
		URL:   url,
		Title: titleOrURL(in.Title, url),
		Desc:  strings.TrimSpace(in.Desc),
		Tags:  domain.NormalizeTags(in.Tags),
		Time:  s.now(),
	}
	if err := s.store.SaveBookmark(ctx, b); err != nil {
		return nil, fmt.Errorf("save bookmark: %w", err)
	}

	if err := s.ledger.RecountOrDefer(ctx, b.Tags); err != nil {
		return nil, err
	}

	s.logger.Info("bookmark created", "id", b.ID, "url", b.URL, "tags", b.Tags)
	return b, nil
}

// Update replaces the title, description and tags of the bookmark for url.
// Every tag that was added or removed is recounted.
func (s *BookmarkService) Update(ctx context.Context, url string, in BookmarkUpdate) (*domain.Bookmark, error) {
	b, err := s.FindByURL(ctx, url)
	if err != nil {
		return nil, err
	}

	oldTags := b.Tags
	b.Title = titleOrURL(in.Title, b.URL)
	b.Desc = strings.TrimSpace(in.Desc)
	b.Tags = domain.NormalizeTags(in.Tags)

	if err := s.store.SaveBookmark(ctx, b); err != nil {
		return nil, fmt.Errorf("save bookmark: %w", err)
	}

	if err := s.ledger.RecountOrDefer(ctx, domain.UnionTags(oldTags, b.Tags)); err != nil {
		return nil, err
	}

	s.logger.Info("bookmark updated", "id", b.ID, "url", b.URL)
	return b, nil
}

// Delete removes the bookmark for url and recounts its tags.
func (s *BookmarkService) Delete(ctx context.Context, url string) error {
	b, err := s.FindByURL(ctx, url)
	if err != nil {
		return err
	}

	if err := s.store.DeleteBookmark(ctx, b.ID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}

	if err := s.ledger.RecountOrDefer(ctx, b.Tags); err != nil {
		return err
	}

	s.logger.Info("bookmark deleted", "id", b.ID, "url", b.URL)
	return nil
}

// BulkImport stores every record in one batch write and recounts the union
// of their tags once. Duplicate URLs are not checked. Records without a URL
// are skipped; URLs that pass validation are normalized. It returns the number of bookmarks stored.
func (s *BookmarkService) BulkImport(ctx context.Context, inputs []domain.BookmarkInput) (int, error) {
	now := s.now()
	bms := make([]*domain.Bookmark, 0, len(inputs))
	var tags []string

	for _, in := range inputs {
		url := strings.TrimSpace(in.URL)
		if url == "" {
			continue
		}
		// Valid URLs are stored the way Create stores them so lookups find
		// them; anything else is kept as given.
		if u, err := NormalizeURL(url); err == nil {
			url = u
		}

		bid, err := id.Bookmark()
		if err != nil {
			return 0, err
		}

		created := in.Time
		if created.IsZero() {
			created = now
		}

		b := &domain.Bookmark{
			ID:    bid,
			URL:   url,
			Title: titleOrURL(in.Title, url),
			Desc:  strings.TrimSpace(in.Desc),
			Tags:  domain.NormalizeTags(in.Tags),
			Time:  created,
		}
		bms = append(bms, b)
		tags = append(tags, b.Tags...)
	}

	if len(bms) == 0 {
		return 0, nil
	}

	if err := s.store.SaveBookmarks(ctx, bms); err != nil {
		return 0, fmt.Errorf("save imported bookmarks: %w", err)
	}

	if err := s.ledger.RecountOrDefer(ctx, tags); err != nil {
		return len(bms), err
	}

	s.logger.Info("bookmarks imported", "count", len(bms))
	return len(bms), nil
}

// ImportNetscape parses a Netscape bookmark file and bulk-imports it. Input
// that is not a Netscape bookmark file imports nothing.
func (s *BookmarkService) ImportNetscape(ctx context.Context, r io.Reader) (int, error) {
	inputs, err := netscape.Parse(r)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeValidation, "unreadable bookmark file")
	}
	return s.BulkImport(ctx, inputs)
}

// PageCount returns how many pages of size hold total items; never less than 1.
func PageCount(total, size int) int {
	if size < 1 {
		size = 1
	}
	q, r := total/size, total%size
	if r > 0 {
		return q + 1
	}
	return max(q, 1)
}

// List returns one page of bookmarks carrying every tag in opts.Tags, newest
// first. A page past the end yields no bookmarks; PageCount tells the caller
// where the last page is.
func (s *BookmarkService) List(ctx context.Context, opts ListOptions) (*BookmarkPage, error) {
	size := opts.PageSize
	if size < 1 {
		size = s.pageSize
	}
	size = min(size, MaxPageSize)
	page := max(opts.Page, 1)

	filter := store.BookmarkFilter{Tags: domain.NormalizeTags(opts.Tags)}

	total, err := s.store.CountBookmarks(ctx, filter)
	if err != nil {
		return nil, err
	}

	bms, err := s.store.QueryBookmarks(ctx, store.BookmarkQuery{
		Filter: filter,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}

	return &BookmarkPage{
		Bookmarks: bms,
		Tags:      filter.Tags,
		Page:      page,
		PageSize:  size,
		PageCount: PageCount(total, size),
		Total:     total,
	}, nil
}

// FindByURL returns the bookmark stored under url.
func (s *BookmarkService) FindByURL(ctx context.Context, url string) (*domain.Bookmark, error) {
	b, err := s.store.FindBookmarkByURL(ctx, lookupURL(url))
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFoundf("no bookmark for %s", url)
	}
	return b, err
}

// Export returns every bookmark carrying all of tags, newest first.
func (s *BookmarkService) Export(ctx context.Context, tags []string) ([]*domain.Bookmark, error) {
	return s.store.QueryBookmarks(ctx, store.BookmarkQuery{
		Filter: store.BookmarkFilter{Tags: domain.NormalizeTags(tags)},
	})
}

// ExportNetscape writes the Export result to w as a Netscape bookmark file.
func (s *BookmarkService) ExportNetscape(ctx context.Context, w io.Writer, tags []string) (int, error) {
	bms, err := s.Export(ctx, tags)
	if err != nil {
		return 0, err
	}
	if err := netscape.Write(w, bms, s.now()); err != nil {
		return 0, fmt.Errorf("write bookmark file: %w", err)
	}
	return len(bms), nil
}

// Suggest normalizes rawURL and pre-fills the new-bookmark form: the
// existing bookmark when the URL is already saved, otherwise the page title.
func (s *BookmarkService) Suggest(ctx context.Context, rawURL string) (*Suggestion, error) {
	url, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindBookmarkByURL(ctx, url)
	switch {
	case err == nil:
		return &Suggestion{URL: url, Title: existing.Title, Existing: existing}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	title := url
	if s.titles != nil {
		title = titleOrURL(s.titles.FetchTitle(ctx, url), url)
	}
	return &Suggestion{URL: url, Title: title}, nil
}

func titleOrURL(title, url string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return url
}
