package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/metrics"
	"sendqueue/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger, &buf
}

func TestObservability_RecordsRequest(t *testing.T) {
	logger, buf := bufferedLogger()
	registry := metrics.NewRegistry()

	var seenID string
	handler := Observability(Options{
		Logger:    logger,
		Registry:  registry,
		RouteName: func(r *http.Request) string { return "/jobs/{id}" },
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = tracing.GetRequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs/123", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, float64(1), registry.CounterValue("http_requests_total", map[string]string{
		"method":      http.MethodGet,
		"endpoint":    "/jobs/{id}",
		"status_code": "404",
	}))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "192.0.2.1", entry["remote_ip"])
	assert.Equal(t, float64(7), entry["size_bytes"])
}

func TestObservability_KeepsCallerRequestID(t *testing.T) {
	logger, _ := bufferedLogger()
	handler := Observability(Options{Logger: logger, Registry: metrics.NewRegistry()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-from-caller")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-from-caller", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	logger, _ := bufferedLogger()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"disabled", "", "", http.StatusNoContent},
		{"valid", "secret", "Bearer secret", http.StatusNoContent},
		{"missing", "secret", "", http.StatusUnauthorized},
		{"wrong", "secret", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AdminAuth(tt.token, logger)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.NewNotFoundError("job", "j1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrCodeNotFound, body.Error.Code)
}
