package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

type taskRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Args      string         `db:"args"`
	Status    string         `db:"status"`
	Attempts  int            `db:"attempts"`
	LastError string         `db:"last_error"`
	CreatedAt string         `db:"created_at"`
	RunAfter  string         `db:"run_after"`
	StartedAt sql.NullString `db:"started_at"`
}

const taskColumns = `id, name, args, status, attempts, last_error, created_at, run_after, started_at`

func toTaskRow(t *domain.Task) (*taskRow, error) {
	args := t.Args
	if args == nil {
		args = []string{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &taskRow{
		ID:        t.ID,
		Name:      t.Name,
		Args:      string(data),
		Status:    string(t.Status),
		Attempts:  t.Attempts,
		LastError: t.LastError,
		CreatedAt: formatTime(t.CreatedAt),
		RunAfter:  formatTime(t.RunAfter),
		StartedAt: nullTime(t.StartedAt),
	}, nil
}

func (r *taskRow) toDomain() (*domain.Task, error) {
	t := &domain.Task{
		ID:        r.ID,
		Name:      r.Name,
		Status:    domain.TaskStatus(r.Status),
		Attempts:  r.Attempts,
		LastError: r.LastError,
	}
	if err := json.Unmarshal([]byte(r.Args), &t.Args); err != nil {
		return nil, err
	}

	var err error
	if t.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if t.RunAfter, err = parseTime(r.RunAfter); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseNullTime(r.StartedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask stores a new task. Returns store.ErrAlreadyExists on ID reuse.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	row, err := toTaskRow(t)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (:id, :name, :args, :status, :attempts, :last_error, :created_at, :run_after, :started_at)`, row)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists.WithMessage("task already exists")
	}
	return err
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// UpdateTask overwrites an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	row, err := toTaskRow(t)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE tasks SET
			name = :name, args = :args, status = :status, attempts = :attempts,
			last_error = :last_error, run_after = :run_after, started_at = :started_at
		WHERE id = :id`, row)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// ListTasks returns tasks with status (all when empty) in ID order.
func (s *Store) ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	var rows []taskRow
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY id`, string(status))
	}
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Task, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
