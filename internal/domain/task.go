package domain

import "time"

// TaskStatus is the lifecycle state of a deferred task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusFailed  TaskStatus = "failed"
)

// Task is a persisted unit of deferred work. Successful tasks are deleted,
// so only pending, running and failed tasks are ever stored.
type Task struct {
	ID        string     `json:"id"` // UUIDv7, so IDs sort in creation order
	Name      string     `json:"name"`
	Args      []string   `json:"args"`
	Status    TaskStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	RunAfter  time.Time  `json:"run_after"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Ready reports whether the task may run at now.
func (t *Task) Ready(now time.Time) bool {
	return t.Status == TaskStatusPending && !now.Before(t.RunAfter)
}

// MarkRunning transitions the task to running.
func (t *Task) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.Attempts++
}

// MarkRetry returns the task to pending after a failed attempt.
func (t *Task) MarkRetry(err error, delay time.Duration) {
	t.Status = TaskStatusPending
	t.LastError = err.Error()
	t.RunAfter = time.Now().Add(delay)
	t.StartedAt = nil
}

// MarkFailed parks the task until an operator retries it.
func (t *Task) MarkFailed(err error) {
	t.Status = TaskStatusFailed
	t.LastError = err.Error()
	t.StartedAt = nil
}

// Reset makes a stalled or failed task runnable again.
func (t *Task) Reset() {
	t.Status = TaskStatusPending
	t.RunAfter = time.Time{}
	t.StartedAt = nil
}
