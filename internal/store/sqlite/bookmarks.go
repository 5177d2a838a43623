package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

type bookmarkRow struct {
	ID          string `db:"id"`
	URL         string `db:"url"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Tags        string `db:"tags"`
	CreatedAt   string `db:"created_at"`
}

func toBookmarkRow(b *domain.Bookmark) (*bookmarkRow, error) {
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return &bookmarkRow{
		ID:          b.ID,
		URL:         b.URL,
		Title:       b.Title,
		Description: b.Desc,
		Tags:        string(data),
		CreatedAt:   formatTime(b.Time),
	}, nil
}

func (r *bookmarkRow) toDomain() (*domain.Bookmark, error) {
	b := &domain.Bookmark{
		ID:    r.ID,
		URL:   r.URL,
		Title: r.Title,
		Desc:  r.Description,
	}
	if err := json.Unmarshal([]byte(r.Tags), &b.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", r.ID, err)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	t, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Time = t
	return b, nil
}

func rowsToDomain(rows []bookmarkRow) ([]*domain.Bookmark, error) {
	out := make([]*domain.Bookmark, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

const bookmarkColumns = `b.id, b.url, b.title, b.description, b.tags, b.created_at`

// GetBookmark retrieves a bookmark by ID.
func (s *Store) GetBookmark(ctx context.Context, id string) (*domain.Bookmark, error) {
	var row bookmarkRow
	err := s.db.GetContext(ctx, &row, `SELECT `+bookmarkColumns+` FROM bookmarks b WHERE b.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBookmarkNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// FindBookmarkByURL returns the newest bookmark with exactly url.
func (s *Store) FindBookmarkByURL(ctx context.Context, url string) (*domain.Bookmark, error) {
	var row bookmarkRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+bookmarkColumns+`
		FROM bookmarks b
		WHERE b.url = ?
		ORDER BY b.created_at DESC, b.id ASC
		LIMIT 1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBookmarkNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// SaveBookmark upserts b.
func (s *Store) SaveBookmark(ctx context.Context, b *domain.Bookmark) error {
	return s.SaveBookmarks(ctx, []*domain.Bookmark{b})
}

// SaveBookmarks upserts all bookmarks in one transaction.
func (s *Store) SaveBookmarks(ctx context.Context, bs []*domain.Bookmark) error {
	if len(bs) == 0 {
		return ctx.Err()
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, b := range bs {
			if err := upsertBookmark(ctx, tx, b); err != nil {
				return fmt.Errorf("save bookmark %s: %w", b.ID, err)
			}
		}
		return nil
	})
}

func upsertBookmark(ctx context.Context, tx *sqlx.Tx, b *domain.Bookmark) error {
	row, err := toBookmarkRow(b)
	if err != nil {
		return err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO bookmarks (id, url, title, description, tags, created_at)
		VALUES (:id, :url, :title, :description, :tags, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			description = excluded.description,
			tags = excluded.tags,
			created_at = excluded.created_at`, row)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmark_tags WHERE bookmark_id = ?`, b.ID); err != nil {
		return err
	}
	for _, name := range b.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO bookmark_tags (bookmark_id, name) VALUES (?, ?)`, b.ID, name); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBookmark removes a bookmark; its tag rows cascade.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrBookmarkNotFound
	}
	return nil
}

// filterClause renders the AND tag filter as a WHERE clause plus its args.
func filterClause(f store.BookmarkFilter) (string, []any, error) {
	tags := f.Distinct()
	if len(tags) == 0 {
		return "", nil, nil
	}
	return sqlx.In(`
		WHERE b.id IN (
			SELECT bookmark_id FROM bookmark_tags
			WHERE name IN (?)
			GROUP BY bookmark_id
			HAVING COUNT(DISTINCT name) = ?
		)`, tags, len(tags))
}

// QueryBookmarks returns bookmarks matching q, newest first.
func (s *Store) QueryBookmarks(ctx context.Context, q store.BookmarkQuery) ([]*domain.Bookmark, error) {
	where, args, err := filterClause(q.Filter)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(q.Offset, 0))

	var sb strings.Builder
	sb.WriteString(`SELECT ` + bookmarkColumns + ` FROM bookmarks b`)
	sb.WriteString(where)
	sb.WriteString(` ORDER BY b.created_at DESC, b.id ASC LIMIT ? OFFSET ?`)

	var rows []bookmarkRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sb.String()), args...); err != nil {
		return nil, err
	}
	return rowsToDomain(rows)
}

// CountBookmarks counts bookmarks matching f.
func (s *Store) CountBookmarks(ctx context.Context, f store.BookmarkFilter) (int, error) {
	where, args, err := filterClause(f)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM bookmarks b`+where), args...)
	return n, err
}
