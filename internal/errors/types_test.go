package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeInvalidConfig,
				Message: "configuration is invalid",
			},
			expected: "INVALID_CONFIG: configuration is invalid",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeNetwork,
				Message: "send failed",
				Cause:   errors.New("connection refused"),
			},
			expected: "NETWORK: send failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "validation failed")

	result := err.WithContext("field", "jobType").WithContext("value", "bogus")

	assert.Same(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "jobType", err.Context["field"])
}

func TestIsRetryable_ThroughWrapping(t *testing.T) {
	retryable := WrapRetryable(errors.New("timeout"), ErrCodeNetwork, "send failed")
	wrapped := fmt.Errorf("job j1: %w", retryable)

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(New(ErrCodeChallenge, "challenge")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(ErrCodeUnregistered, "gone"))

	assert.Equal(t, ErrCodeUnregistered, GetCode(wrapped))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
	assert.True(t, HasCode(wrapped, ErrCodeUnregistered))
	assert.False(t, HasCode(nil, ErrCodeUnregistered))
}

func TestAs(t *testing.T) {
	appErr, ok := As(fmt.Errorf("x: %w", New(ErrCodeDeadline, "late")))
	require.True(t, ok)
	assert.Equal(t, ErrCodeDeadline, appErr.Code)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestGetUserMessage(t *testing.T) {
	assert.Equal(t, "custom", GetUserMessage(New(ErrCodeNotFound, "x").WithUserMessage("custom")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeNotFound, "x")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(errors.New("plain")))
}

func TestAppError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("load: %w", NewNotFoundError("message", "m1"))

	assert.True(t, errors.Is(err, New(ErrCodeNotFound, "")))
	assert.False(t, errors.Is(err, New(ErrCodeDatabaseQuery, "")))
	assert.False(t, errors.Is(errors.New("plain"), New(ErrCodeNotFound, "")))
}

func TestWrapRetryable_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapRetryable(cause, ErrCodeNetwork, "send failed")

	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
	assert.False(t, Wrap(cause, ErrCodeNetwork, "send failed").Retryable)
}
