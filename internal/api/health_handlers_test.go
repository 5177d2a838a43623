package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.V)
	assert.Equal(t, statusHealthy, env.Data.Status)
	assert.Equal(t, statusHealthy, env.Data.Components["store"].Status)
	assert.Equal(t, "0 pending", env.Data.Components["tasks"].Message)
}

func TestHealthCheck_DegradedByFailedTask(t *testing.T) {
	ts := setupTestServer(t)

	require.NoError(t, ts.store.CreateTask(context.Background(), &domain.Task{
		ID:        "task-1",
		Name:      "tags.recount",
		Args:      []string{"go"},
		Status:    domain.TaskStatusFailed,
		LastError: "boom",
		CreatedAt: time.Now(),
	}))

	resp := ts.api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, statusDegraded, env.Data.Status)
	assert.Equal(t, "0 pending, 1 failed", env.Data.Components["tasks"].Message)
}

func TestHealthCheck_NoServices(t *testing.T) {
	s := &Server{}

	out, err := s.handleHealthCheck(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, statusDegraded, out.Body.Status)
}
