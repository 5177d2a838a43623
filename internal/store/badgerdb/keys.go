package badgerdb

import (
	"strings"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

// Key layout. Index keys embed the inverted creation time so that a forward
// scan yields bookmarks newest first.
//
//	bookmark:{id}                                    → Bookmark JSON
//	idx:bookmarks:time:{inv_ts}:{id}                 → empty
//	idx:bookmarks:url:{url}\x00{inv_ts}:{id}         → empty
//	idx:bookmarks:tags:{tag}\x00{inv_ts}:{id}        → empty
//	tag:{name}                                       → Tag JSON
//	task:{id}                                        → Task JSON
const (
	bookmarkPrefix      = "bookmark:"
	bookmarkTimePrefix  = "idx:bookmarks:time:"
	bookmarkURLPrefix   = "idx:bookmarks:url:"
	bookmarkTagsPrefix  = "idx:bookmarks:tags:"
	tagPrefix           = "tag:"
	taskPrefix          = "task:"
	sep                 = "\x00"
	invertedTimestampSz = 19
)

func bookmarkKey(id string) []byte { return []byte(bookmarkPrefix + id) }

func timeIndexKey(b *domain.Bookmark) []byte {
	return []byte(bookmarkTimePrefix + invertedTimestamp(b.Time) + ":" + b.ID)
}

func urlIndexPrefix(url string) []byte { return []byte(bookmarkURLPrefix + url + sep) }

func urlIndexKey(b *domain.Bookmark) []byte {
	return append(urlIndexPrefix(b.URL), invertedTimestamp(b.Time)+":"+b.ID...)
}

func tagIndexPrefix(tag string) []byte { return []byte(bookmarkTagsPrefix + tag + sep) }

func tagIndexKey(tag string, b *domain.Bookmark) []byte {
	return append(tagIndexPrefix(tag), invertedTimestamp(b.Time)+":"+b.ID...)
}

// indexKeys returns every index entry b owns.
func indexKeys(b *domain.Bookmark) [][]byte {
	keys := make([][]byte, 0, len(b.Tags)+2)
	keys = append(keys, timeIndexKey(b), urlIndexKey(b))
	for _, t := range b.Tags {
		keys = append(keys, tagIndexKey(t, b))
	}
	return keys
}

// idFromIndexKey extracts the bookmark ID following {inv_ts}: after prefix.
func idFromIndexKey(key, prefix []byte) string {
	rest := key[len(prefix):]
	if len(rest) <= invertedTimestampSz+1 {
		return ""
	}
	return strings.Clone(string(rest[invertedTimestampSz+1:]))
}

func tagKey(name string) []byte { return []byte(tagPrefix + name) }

func taskKey(id string) []byte { return []byte(taskPrefix + id) }
