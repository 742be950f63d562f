package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger()

	assert.NotNil(t, logger)
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "Logger should use JSON formatter")
}

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fields   []logrus.Fields
		expected map[string]interface{}
	}{
		{
			name:   "AppError with context",
			err:    New(ErrCodeUnregistered, "recipient gone").WithContext("conversation_id", "c1"),
			fields: []logrus.Fields{{"job_id": "j1"}},
			expected: map[string]interface{}{
				"level":           "error",
				"error_code":      "UNREGISTERED",
				"retryable":       false,
				"conversation_id": "c1",
				"job_id":          "j1",
			},
		},
		{
			name: "standard error",
			err:  errors.New("something went wrong"),
			expected: map[string]interface{}{
				"level": "error",
				"error": "something went wrong",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			logger.LogError(tt.err, "send failed", tt.fields...)

			entry := decodeEntry(t, buf)
			assert.Equal(t, "send failed", entry["msg"])
			for k, v := range tt.expected {
				assert.Equal(t, v, entry[k], k)
			}
		})
	}
}

func TestLogger_LogRetryableError(t *testing.T) {
	t.Run("retryable logs at warn", func(t *testing.T) {
		logger, buf := newBufferedLogger()
		logger.LogRetryableError(WrapRetryable(errors.New("timeout"), ErrCodeNetwork, "send failed"), "will retry")

		entry := decodeEntry(t, buf)
		assert.Equal(t, "warning", entry["level"])
		assert.Equal(t, true, entry["retryable"])
	})

	t.Run("permanent logs at error", func(t *testing.T) {
		logger, buf := newBufferedLogger()
		logger.LogRetryableError(New(ErrCodeChallenge, "challenge"), "giving up")

		entry := decodeEntry(t, buf)
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, "CHALLENGE", entry["error_code"])
	})
}

func TestFields(t *testing.T) {
	assert.Nil(t, Fields(errors.New("plain")))

	fields := Fields(New(ErrCodeDeadline, "late").WithContext("job_id", "j1"))
	assert.Equal(t, ErrCodeDeadline, fields["error_code"])
	assert.Equal(t, "j1", fields["job_id"])
}

func TestFromLogrus(t *testing.T) {
	base := logrus.New()
	base.SetLevel(logrus.FatalLevel)

	logger := FromLogrus(base)
	assert.Same(t, base, logger.Logger)
}
