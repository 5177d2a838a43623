package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagmarkapp/tagmark-server/internal/http/response"
)

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		input       any
		wantSuccess bool
	}{
		{"success response", "200", map[string]string{"key": "value"}, true},
		{"created response", "201", map[string]string{"id": "123"}, true},
		{"no content response", "204", nil, true},
		{"conflict error with details", "409", &APIError{
			Code:    "ALREADY_EXISTS",
			Message: "bookmark already exists",
			Details: map[string]string{"existing": "123"},
		}, false},
		{"schema error", "400", &huma.ErrorModel{Status: 400, Detail: "bad body"}, false},
		{"plain error value", "500", errors.New("internal error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			raw, err := json.Marshal(result)
			require.NoError(t, err)

			var out map[string]any
			require.NoError(t, json.Unmarshal(raw, &out))
			assert.InDelta(t, 1, out["v"], 0)
			assert.Equal(t, tt.wantSuccess, out["success"])
		})
	}
}

func TestEnvelopeTransformer_ErrorFields(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "409", &APIError{
		Code:    "ALREADY_EXISTS",
		Message: "bookmark already exists",
		Details: map[string]string{"existing": "123"},
	})
	require.NoError(t, err)

	env, ok := result.(response.Envelope)
	require.True(t, ok)
	assert.False(t, env.Success)
	assert.Equal(t, "ALREADY_EXISTS", env.Code)
	assert.Equal(t, "bookmark already exists", env.Error)
	assert.Equal(t, env.Error, env.Message)
	assert.Equal(t, map[string]string{"existing": "123"}, env.Details)
}

func TestEnvelopeTransformer_PassesEnvelopeThrough(t *testing.T) {
	in := response.Envelope{V: 1, Success: true, Data: "x"}
	result, err := EnvelopeTransformer(nil, "200", in)
	require.NoError(t, err)
	assert.Equal(t, in, result)
}

func TestRateLimitMiddleware(t *testing.T) {
	ts := setupTestServer(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 2
	})

	for range 2 {
		resp := ts.api.Get("/api/v1/tags", "X-Real-IP: 10.0.0.1")
		require.Equal(t, http.StatusOK, resp.Code)
	}

	resp := ts.api.Get("/api/v1/tags", "X-Real-IP: 10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "1", resp.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode[any](t, resp.Body.Bytes()).Code)

	// Other clients and the health check are unaffected.
	assert.Equal(t, http.StatusOK, ts.api.Get("/api/v1/tags", "X-Real-IP: 10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, ts.api.Get("/health", "X-Real-IP: 10.0.0.1").Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "9.9.9.9:1234", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1234", "3.3.3.3"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote addr without port", nil, "9.9.9.9", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/api/v1/tags", line["path"])
	assert.InDelta(t, 404, line["status"], 0)
}
