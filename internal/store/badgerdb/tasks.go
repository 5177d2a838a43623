package badgerdb

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

// CreateTask stores a new task. Returns store.ErrAlreadyExists on ID reuse.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(taskKey(t.ID)); err == nil {
			return store.ErrAlreadyExists.WithMessage("task already exists")
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, taskKey(t.ID), t)
	})
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var t domain.Task
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, taskKey(id), &t, store.ErrTaskNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask overwrites an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(taskKey(t.ID)); errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrTaskNotFound
		} else if err != nil {
			return err
		}
		return setJSON(txn, taskKey(t.ID), t)
	})
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(taskKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrTaskNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(taskKey(id))
	})
}

// ListTasks returns tasks with the given status (all when empty) in ID order.
func (s *Store) ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tasks := []*domain.Task{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(taskPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t domain.Task
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			if status == "" || t.Status == status {
				tasks = append(tasks, &t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
