package domain

import (
	"slices"
	"strings"
	"time"
)

// Bookmark is a saved URL with a title, optional description and tags.
// URL is the user-facing identifier; ID is the storage identity because bulk
// import may store the same URL more than once.
type Bookmark struct {
	ID    string    `json:"id"`
	URL   string    `json:"url"`
	Title string    `json:"title"`
	Desc  string    `json:"desc,omitempty"`
	Tags  []string  `json:"tags"`
	Time  time.Time `json:"time"` // Creation time, never changed after insert
}

// BookmarkInput is the caller-supplied content of a new bookmark.
type BookmarkInput struct {
	URL   string
	Title string
	Desc  string
	Tags  []string
	// Time is honoured only by bulk import; zero means now.
	Time time.Time
}

// HasTag reports whether the bookmark carries name.
func (b *Bookmark) HasTag(name string) bool {
	return slices.Contains(b.Tags, name)
}

// HasAllTags reports whether the bookmark carries every name in names.
func (b *Bookmark) HasAllTags(names []string) bool {
	for _, n := range names {
		if !b.HasTag(n) {
			return false
		}
	}
	return true
}

// RemoveTag drops every occurrence of name and reports whether any was removed.
func (b *Bookmark) RemoveTag(name string) bool {
	before := len(b.Tags)
	b.Tags = slices.DeleteFunc(b.Tags, func(t string) bool { return t == name })
	return len(b.Tags) != before
}

// AddTag appends name unless already present.
func (b *Bookmark) AddTag(name string) {
	if !b.HasTag(name) {
		b.Tags = append(b.Tags, name)
	}
}

// NormalizeTags splits every entry on whitespace, drops empties and removes
// duplicates keeping the first occurrence. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		for _, t := range strings.Fields(raw) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// UnionTags returns the distinct names across all sets, sorted.
func UnionTags(sets ...[]string) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, t := range set {
			if t != "" {
				seen[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
