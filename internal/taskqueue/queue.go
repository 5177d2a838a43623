// Package taskqueue runs named, persisted tasks on a small worker pool.
//
// Tasks are durable: Schedule writes the task to the store before any worker
// sees it, a task is deleted only after its handler succeeds, and tasks left
// running by a crash are reset on Start. Delivery is therefore at-least-once
// and handlers must tolerate re-execution.
package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

// Handler executes one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, args []string) error

// Config tunes the worker pool.
type Config struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	// RetryDelay is multiplied by the attempt count between retries.
	RetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
}

// Queue schedules and executes tasks.
type Queue struct {
	store  store.Store
	logger *slog.Logger
	cfg    Config

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	// claimMu serializes claiming so a task is handed to one worker only.
	claimMu sync.Mutex

	// Worker management
	ctx    context.Context //nolint:containedctx // worker lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
	notify chan struct{}
}

// New creates a queue. Workers do not run until Start.
func New(s store.Store, cfg Config, logger *slog.Logger) *Queue {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:    s,
		logger:   logger.With("component", "taskqueue"),
		cfg:      cfg,
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
	}
}

// Register binds name to h, replacing any previous handler.
func (q *Queue) Register(name string, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[name] = h
}

func (q *Queue) handler(name string) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Schedule persists a pending task and wakes a worker. The caller never
// observes the task's outcome.
func (q *Queue) Schedule(ctx context.Context, name string, args ...string) (*domain.Task, error) {
	tid, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}

	now := time.Now()
	task := &domain.Task{
		ID:        tid.String(),
		Name:      name,
		Args:      append([]string{}, args...),
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		RunAfter:  now,
	}
	if err := q.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}

	q.logger.Debug("task scheduled", "task_id", task.ID, "name", name, "args", args)
	q.Notify()
	return task, nil
}

// Notify wakes one idle worker.
func (q *Queue) Notify() {
	select {
	case q.notify <- struct{}{}:
	default:
		// Already notified
	}
}

// Start recovers stalled tasks and launches the workers.
func (q *Queue) Start() {
	q.logger.Info("starting task workers", "workers", q.cfg.Workers)

	q.recoverStalled()

	for i := range q.cfg.Workers {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop cancels in-flight handlers and waits for the workers to exit.
func (q *Queue) Stop() {
	q.logger.Info("stopping task workers")
	q.cancel()
	q.wg.Wait()
	q.logger.Info("task workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("task worker started", "worker_id", id)

	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("task worker stopping", "worker_id", id)
			return
		case <-q.notify:
		case <-time.After(q.cfg.PollInterval):
		}

		// Drain everything ready; a handler may schedule its own continuation.
		for q.ctx.Err() == nil {
			ran, err := q.runNext(q.ctx)
			if err != nil {
				q.logger.Error("task worker failed to claim", "worker_id", id, "error", err)
				break
			}
			if !ran {
				break
			}
		}
	}
}

// RunPending executes ready tasks on the calling goroutine until none remain,
// including tasks scheduled by the handlers it runs. It returns how many ran.
func (q *Queue) RunPending(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ran, err := q.runNext(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

// runNext claims and executes the oldest ready task, reporting whether one ran.
func (q *Queue) runNext(ctx context.Context) (bool, error) {
	task, err := q.claim(ctx)
	if err != nil || task == nil {
		return false, err
	}
	q.execute(ctx, task)
	return true, nil
}

func (q *Queue) claim(ctx context.Context) (*domain.Task, error) {
	q.claimMu.Lock()
	defer q.claimMu.Unlock()

	pending, err := q.store.ListTasks(ctx, domain.TaskStatusPending)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, task := range pending {
		if !task.Ready(now) {
			continue
		}
		task.MarkRunning()
		if err := q.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
		return task, nil
	}
	return nil, nil
}

func (q *Queue) execute(ctx context.Context, task *domain.Task) {
	log := q.logger.With("task_id", task.ID, "name", task.Name, "attempt", task.Attempts)
	// Bookkeeping must land even when ctx is canceled mid-handler.
	bg := context.WithoutCancel(ctx)

	h, ok := q.handler(task.Name)
	if !ok {
		task.MarkFailed(fmt.Errorf("no handler registered for %q", task.Name))
		log.Error("unknown task")
		if err := q.store.UpdateTask(bg, task); err != nil {
			log.Error("failed to park unknown task", "error", err)
		}
		return
	}

	start := time.Now()
	err := safeCall(ctx, h, task.Args)
	if err == nil {
		if err := q.store.DeleteTask(bg, task.ID); err != nil {
			log.Error("failed to delete completed task", "error", err)
		}
		log.Debug("task completed", "duration", time.Since(start))
		return
	}

	switch {
	case ctx.Err() != nil:
		// Shutdown interrupted the handler; run again without burning an attempt.
		task.Attempts--
		task.MarkRetry(err, 0)
		log.Info("task interrupted, will resume", "error", err)
	case task.Attempts >= q.cfg.MaxAttempts:
		task.MarkFailed(err)
		log.Error("task failed permanently", "error", err)
	default:
		delay := q.cfg.RetryDelay * time.Duration(task.Attempts)
		task.MarkRetry(err, delay)
		log.Warn("task failed, will retry", "error", err, "retry_in", delay)
	}

	if err := q.store.UpdateTask(bg, task); err != nil {
		log.Error("failed to record task failure", "error", err)
	}
}

func safeCall(ctx context.Context, h Handler, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

// recoverStalled resets tasks that were running when the process stopped.
func (q *Queue) recoverStalled() {
	ctx := context.Background()

	running, err := q.store.ListTasks(ctx, domain.TaskStatusRunning)
	if err != nil {
		q.logger.Error("failed to list running tasks for recovery", "error", err)
		return
	}

	for _, task := range running {
		q.logger.Info("recovering stalled task", "task_id", task.ID, "name", task.Name)
		task.Reset()
		if err := q.store.UpdateTask(ctx, task); err != nil {
			q.logger.Error("failed to reset stalled task", "task_id", task.ID, "error", err)
		}
	}

	if len(running) > 0 {
		q.logger.Info("recovered stalled tasks", "count", len(running))
		q.Notify()
	}
}

// Retry returns a failed task to the pending queue.
func (q *Queue) Retry(ctx context.Context, taskID string) error {
	task, err := q.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusFailed {
		return domainerrors.Conflict(fmt.Sprintf("task %s is %s, only failed tasks can be retried", taskID, task.Status))
	}

	task.Reset()
	task.Attempts = 0
	if err := q.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	q.Notify()
	return nil
}

// List returns tasks with status, or all tasks when status is empty.
func (q *Queue) List(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	return q.store.ListTasks(ctx, status)
}

// Backlog counts tasks that are pending or running.
func (q *Queue) Backlog(ctx context.Context) (int, error) {
	all, err := q.store.ListTasks(ctx, "")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range all {
		if t.Status != domain.TaskStatusFailed {
			n++
		}
	}
	return n, nil
}
