package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTransportError(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name          string
		status        int
		wantCode      ErrorCode
		wantRetryable bool
	}{
		{"no response", 0, ErrCodeNetwork, true},
		{"server error", 500, ErrCodeServer, true},
		{"bad gateway", 502, ErrCodeServer, true},
		{"rate limited", 429, ErrCodeServer, true},
		{"request timeout", 408, ErrCodeServer, true},
		{"unregistered", 404, ErrCodeUnregistered, false},
		{"challenge", 428, ErrCodeChallenge, false},
		{"server asked to stop", 508, ErrCodeServerStop, false},
		{"bad request", 400, ErrCodeServer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTransportError("sendMessage", tt.status, cause)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
			assert.Equal(t, tt.status, err.Context["status_code"])
			assert.True(t, errors.Is(err, cause))
		})
	}
}

func TestNewUntrustedError(t *testing.T) {
	err := NewUntrustedError([]string{"a", "b"})

	assert.Equal(t, ErrCodeUntrusted, err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, 2, err.Context["untrusted_count"])
	assert.NotEmpty(t, err.UserMessage)
}

func TestNewDeadlineError(t *testing.T) {
	err := NewDeadlineError("job-1", 25*time.Hour)

	assert.Equal(t, ErrCodeDeadline, err.Code)
	assert.Equal(t, "job-1", err.Context["job_id"])
	assert.Equal(t, "25h0m0s", err.Context["elapsed"])
}

func TestNewJobPayloadError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := NewJobPayloadError("Reaction", cause)

	assert.Equal(t, ErrCodeJobPayload, err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, "Reaction", err.Context["job_type"])
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("type", "x", "unknown"), 400},
		{"payload", NewJobPayloadError("Reaction", errors.New("x")), 400},
		{"auth", NewAuthError("bad token"), 401},
		{"not found", NewNotFoundError("job", "j1"), 404},
		{"timeout", NewTimeoutError("send", "30s"), 408},
		{"retryable transport", NewTransportError("send", 503, nil), 502},
		{"permanent transport", NewTransportError("send", 400, nil), 500},
		{"database", NewDatabaseError("insert", errors.New("locked")), 503},
		{"plain", errors.New("plain"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestToHTTPResponse(t *testing.T) {
	err := NewNotFoundError("job", "j1").WithContext("token", "secret-value")

	resp := ToHTTPResponse(err)

	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "job not found", resp.Error.Message)
	ctx, ok := resp.Error.Context.(map[string]interface{})
	if assert.True(t, ok) {
		assert.Equal(t, "j1", ctx["identifier"])
		assert.NotContains(t, ctx, "token")
	}

	plain := ToHTTPResponse(errors.New("boom"))
	assert.Equal(t, ErrCodeInternalError, plain.Error.Code)
	assert.Nil(t, plain.Error.Context)
}
