package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode classifies an AppError. Codes are logged and returned by the
// admin API, so treat them as stable.
type ErrorCode string

// Configuration and storage
const (
	ErrCodeInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
)

// Delivery outcomes reported by the transport
const (
	ErrCodeNetwork      ErrorCode = "NETWORK"
	ErrCodeServer       ErrorCode = "SERVER"
	ErrCodeUnregistered ErrorCode = "UNREGISTERED"
	ErrCodeUntrusted    ErrorCode = "UNTRUSTED"
	ErrCodeIdentityKey  ErrorCode = "IDENTITY_KEY"
	ErrCodeChallenge    ErrorCode = "CHALLENGE"
	ErrCodeServerStop   ErrorCode = "SERVER_STOP"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT"
	ErrCodeSendFailed   ErrorCode = "SEND_FAILED"
	ErrCodeDeadline     ErrorCode = "DEADLINE"
)

// Queue
const (
	ErrCodeJobPayload     ErrorCode = "JOB_PAYLOAD"
	ErrCodeUnknownJobType ErrorCode = "UNKNOWN_JOB_TYPE"
)

// Caller input and access
const (
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeAuthentication   ErrorCode = "AUTHENTICATION"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
)

// Everything else
const (
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError is an error with a code, optional cause and loggable context.
// Retryable tells the job queue whether another attempt may succeed.
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError with the same code, so a bare New(code, "")
// works as a sentinel with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithContext attaches a key/value pair for logs and API responses.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the text returned to API callers.
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap keeps err as the cause. The result is not retryable.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// WrapRetryable is Wrap for failures another attempt may fix.
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	appErr := Wrap(err, code, message)
	appErr.Retryable = true
	return appErr
}

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Retryable
}

// GetCode returns the code of the outermost AppError, or
// ErrCodeInternalError for plain errors.
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetUserMessage returns text that is safe to show an API caller.
func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}
