package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
	"github.com/tagmarkapp/tagmark-server/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, map[string]int{"imported": 3}, testLogger())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.EqualValues(t, 1, body["v"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"imported": float64(3)}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestJSON_ErrorStatusIsNotSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNotFound, map[string]string{"k": "v"}, testLogger())

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	Created(w, "x", testLogger())
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(http.ResponseWriter)
		status   int
		wantCode string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad", testLogger()) }, http.StatusBadRequest, "VALIDATION"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone", testLogger()) }, http.StatusNotFound, "NOT_FOUND"},
		{"too many", func(w http.ResponseWriter) { TooManyRequests(w, "slow down", testLogger()) }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "boom", testLogger()) }, http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.EqualValues(t, 1, body["v"])
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTooManyRequests_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "slow down", nil)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantCode string
	}{
		{
			name:     "domain validation",
			err:      domainerrors.ValidationWithDetails("invalid url", map[string]string{"url": "must be a valid URL"}),
			status:   http.StatusBadRequest,
			wantCode: "VALIDATION",
		},
		{
			name:     "wrapped domain conflict",
			err:      errors.Join(errors.New("ctx"), domainerrors.AlreadyExists("dup")),
			status:   http.StatusConflict,
			wantCode: "ALREADY_EXISTS",
		},
		{
			name:     "store not found",
			err:      store.ErrBookmarkNotFound,
			status:   http.StatusNotFound,
			wantCode: "NOT_FOUND",
		},
		{
			name:     "unknown",
			err:      errors.New("disk on fire"),
			status:   http.StatusInternalServerError,
			wantCode: "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, testLogger())

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.wantCode, decode(t, w)["code"])
		})
	}
}

func TestHandleError_KeepsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, domainerrors.ValidationWithDetails("invalid", map[string]string{"url": "bad"}), testLogger())

	assert.Equal(t, map[string]any{"url": "bad"}, decode(t, w)["details"])
}

func TestHandleError_UnknownDoesNotLeakMessage(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.New("secret path /var/lib/x"), testLogger())

	assert.Equal(t, "internal server error", decode(t, w)["error"])
}
