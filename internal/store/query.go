package store

import (
	"cmp"
	"slices"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

// BookmarkFilter narrows bookmark queries. Tags are ANDed; an empty filter
// matches every bookmark.
type BookmarkFilter struct {
	Tags []string
}

// Matches reports whether b satisfies the filter.
func (f BookmarkFilter) Matches(b *domain.Bookmark) bool {
	return b.HasAllTags(f.Tags)
}

// Distinct returns the filter tags without duplicates or empties, sorted.
func (f BookmarkFilter) Distinct() []string {
	return domain.UnionTags(f.Tags)
}

// BookmarkQuery is a filtered window over bookmarks ordered newest first.
type BookmarkQuery struct {
	Filter BookmarkFilter
	// Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// Window applies offset and limit to an already ordered slice.
func (q BookmarkQuery) Window(all []*domain.Bookmark) []*domain.Bookmark {
	if q.Offset > 0 {
		if q.Offset >= len(all) {
			return []*domain.Bookmark{}
		}
		all = all[q.Offset:]
	}
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all
}

// CompareNewest orders bookmarks by time descending, then ID ascending. Every
// store returns query results in this order.
func CompareNewest(a, b *domain.Bookmark) int {
	if c := b.Time.Compare(a.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortNewest sorts bs in place by CompareNewest.
func SortNewest(bs []*domain.Bookmark) {
	slices.SortFunc(bs, CompareNewest)
}
