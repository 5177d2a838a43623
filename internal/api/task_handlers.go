package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

func (s *Server) registerTaskRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTasks",
		Method:      http.MethodGet,
		Path:        "/api/v1/tasks",
		Summary:     "List tasks",
		Description: "Returns deferred tasks that have not completed yet",
		Tags:        []string{"Tasks"},
	}, s.handleListTasks)

	huma.Register(s.api, huma.Operation{
		OperationID:   "retryTask",
		Method:        http.MethodPost,
		Path:          "/api/v1/tasks/{id}/retry",
		Summary:       "Retry task",
		Description:   "Returns a failed task to the queue",
		Tags:          []string{"Tasks"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleRetryTask)
}

// ListTasksInput contains parameters for listing tasks.
type ListTasksInput struct {
	Status string `query:"status" enum:"pending,running,failed" doc:"Only tasks in this state"`
}

// ListTasksResponse contains the task listing.
type ListTasksResponse struct {
	Tasks []*domain.Task `json:"tasks"`
}

// ListTasksOutput wraps the task listing for Huma.
type ListTasksOutput struct {
	Body ListTasksResponse
}

// RetryTaskInput addresses a task by ID.
type RetryTaskInput struct {
	ID string `path:"id" doc:"Task ID"`
}

func (s *Server) handleListTasks(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
	tasks, err := s.services.Tasks.List(ctx, domain.TaskStatus(input.Status))
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return &ListTasksOutput{Body: ListTasksResponse{Tasks: tasks}}, nil
}

func (s *Server) handleRetryTask(ctx context.Context, input *RetryTaskInput) (*ScheduledOutput, error) {
	if err := s.services.Tasks.Retry(ctx, input.ID); err != nil {
		return nil, err
	}
	return &ScheduledOutput{Body: ScheduledResponse{Status: "scheduled"}}, nil
}
