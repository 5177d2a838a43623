package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

// saveChunkSize bounds bookmarks per transaction in SaveBookmarks so that a
// large import never trips badger.ErrTxnTooBig.
const saveChunkSize = 500

// GetBookmark retrieves a bookmark by ID.
func (s *Store) GetBookmark(ctx context.Context, id string) (*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b domain.Bookmark
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, bookmarkKey(id), &b, store.ErrBookmarkNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBookmarkByURL returns the newest bookmark stored under url.
func (s *Store) FindBookmarkByURL(ctx context.Context, url string) (*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b domain.Bookmark
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := urlIndexPrefix(url)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := idFromIndexKey(it.Item().Key(), prefix)
			err := getJSON(txn, bookmarkKey(id), &b, store.ErrBookmarkNotFound)
			if errors.Is(err, store.ErrBookmarkNotFound) {
				s.logger.Warn("dangling url index entry", "url", url, "bookmark_id", id)
				continue
			}
			return err
		}
		return store.ErrBookmarkNotFound
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBookmark upserts b and its indexes.
func (s *Store) SaveBookmark(ctx context.Context, b *domain.Bookmark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return putBookmark(txn, b)
	})
}

// SaveBookmarks upserts bs in chunked transactions.
func (s *Store) SaveBookmarks(ctx context.Context, bs []*domain.Bookmark) error {
	for start := 0; start < len(bs); start += saveChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := bs[start:min(start+saveChunkSize, len(bs))]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, b := range chunk {
				if err := putBookmark(txn, b); err != nil {
					return fmt.Errorf("save bookmark %s: %w", b.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// putBookmark writes b, replacing the index entries of any previous version.
func putBookmark(txn *badger.Txn, b *domain.Bookmark) error {
	var old domain.Bookmark
	err := getJSON(txn, bookmarkKey(b.ID), &old, store.ErrBookmarkNotFound)
	switch {
	case err == nil:
		for _, k := range indexKeys(&old) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
	case !errors.Is(err, store.ErrBookmarkNotFound):
		return err
	}

	if err := setJSON(txn, bookmarkKey(b.ID), b); err != nil {
		return err
	}
	for _, k := range indexKeys(b) {
		if err := txn.Set(k, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBookmark removes a bookmark and its index entries.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var b domain.Bookmark
		if err := getJSON(txn, bookmarkKey(id), &b, store.ErrBookmarkNotFound); err != nil {
			return err
		}
		for _, k := range indexKeys(&b) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(bookmarkKey(id))
	})
}

// QueryBookmarks returns bookmarks matching q, newest first.
func (s *Store) QueryBookmarks(ctx context.Context, q store.BookmarkQuery) ([]*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []*domain.Bookmark{}
	skipped := 0
	err := s.scan(q.Filter, func(b *domain.Bookmark) bool {
		if skipped < q.Offset {
			skipped++
			return true
		}
		out = append(out, b)
		return q.Limit <= 0 || len(out) < q.Limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountBookmarks counts bookmarks matching f.
func (s *Store) CountBookmarks(ctx context.Context, f store.BookmarkFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.scan(f, func(*domain.Bookmark) bool {
		n++
		return true
	})
	return n, err
}

// scan visits bookmarks matching f newest first until fn returns false.
// With tags it walks the index of the first filter tag and checks the rest
// against each record; without tags it walks the time index.
func (s *Store) scan(f store.BookmarkFilter, fn func(*domain.Bookmark) bool) error {
	tags := f.Distinct()
	prefix := []byte(bookmarkTimePrefix)
	if len(tags) > 0 {
		prefix = tagIndexPrefix(tags[0])
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := idFromIndexKey(it.Item().Key(), prefix)
			var b domain.Bookmark
			err := getJSON(txn, bookmarkKey(id), &b, store.ErrBookmarkNotFound)
			if errors.Is(err, store.ErrBookmarkNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !b.HasAllTags(tags) {
				continue
			}
			if !fn(&b) {
				return nil
			}
		}
		return nil
	})
}
