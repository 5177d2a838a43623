package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

type tagRow struct {
	Name      string `db:"name"`
	Count     int    `db:"count"`
	UpdatedAt string `db:"updated_at"`
}

func (r *tagRow) toDomain() (*domain.Tag, error) {
	t, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Tag{Name: r.Name, Count: r.Count, UpdatedAt: t}, nil
}

// GetTag retrieves a tag by name.
func (s *Store) GetTag(ctx context.Context, name string) (*domain.Tag, error) {
	var row tagRow
	err := s.db.GetContext(ctx, &row, `SELECT name, count, updated_at FROM tags WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// SaveTag upserts t.
func (s *Store) SaveTag(ctx context.Context, t *domain.Tag) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tags (name, count, updated_at) VALUES (:name, :count, :updated_at)
		ON CONFLICT(name) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		tagRow{Name: t.Name, Count: t.Count, UpdatedAt: formatTime(t.UpdatedAt)})
	return err
}

// DeleteTag removes a tag record. Missing tags are ignored.
func (s *Store) DeleteTag(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE name = ?`, name)
	return err
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	var rows []tagRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, count, updated_at FROM tags ORDER BY name`); err != nil {
		return nil, err
	}

	out := make([]*domain.Tag, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
