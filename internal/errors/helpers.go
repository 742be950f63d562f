package errors

import (
	"fmt"
	"time"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewTransportError classifies a failed relay call by its HTTP-style status.
// 5xx, 429 and 408 are transient; anything else is permanent for the target.
func NewTransportError(operation string, statusCode int, err error) *AppError {
	code := ErrCodeServer
	switch statusCode {
	case 0:
		code = ErrCodeNetwork
	case 404:
		code = ErrCodeUnregistered
	case 428:
		code = ErrCodeChallenge
	case 508:
		code = ErrCodeServerStop
	}

	retryable := statusCode == 0 || (statusCode >= 500 && statusCode != 508) || statusCode == 429 || statusCode == 408

	appErr := Wrap(err, code, fmt.Sprintf("%s failed", operation)).
		WithContext("operation", operation).
		WithContext("status_code", statusCode)
	appErr.Retryable = retryable
	return appErr
}

// NewUntrustedError reports participants whose identity changed and must be
// confirmed before anything is sent to them.
func NewUntrustedError(conversationIDs []string) *AppError {
	return New(ErrCodeUntrusted, "conversation has untrusted participants").
		WithContext("untrusted_count", len(conversationIDs)).
		WithUserMessage("Safety number changed, verify before sending")
}

// NewDeadlineError creates the terminal error recorded when a job runs out of time.
func NewDeadlineError(jobID string, elapsed time.Duration) *AppError {
	return New(ErrCodeDeadline, "ran out of time").
		WithContext("job_id", jobID).
		WithContext("elapsed", elapsed.String()).
		WithUserMessage("Message could not be sent in time")
}

// NewJobPayloadError creates the error for a job whose payload cannot be parsed.
func NewJobPayloadError(jobType string, err error) *AppError {
	return Wrap(err, ErrCodeJobPayload, "invalid job payload").
		WithContext("job_type", jobType)
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication/authorization error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	code := GetCode(err)

	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeJobPayload, ErrCodeUnknownJobType:
		return 400 // Bad Request
	case ErrCodeAuthentication:
		return 401 // Unauthorized
	case ErrCodeNotFound:
		return 404 // Not Found
	case ErrCodeRateLimit:
		return 429 // Too Many Requests
	case ErrCodeTimeout:
		return 408 // Request Timeout
	case ErrCodeNetwork, ErrCodeServer:
		if IsRetryable(err) {
			return 502 // Bad Gateway
		}
		return 500 // Internal Server Error
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// HTTPErrorResponse is the JSON body returned by the admin API on failure
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error) HTTPErrorResponse {
	var response HTTPErrorResponse

	if appErr, ok := As(err); ok {
		response.Error.Code = appErr.Code
		response.Error.Message = GetUserMessage(err)
		if len(appErr.Context) > 0 {
			publicContext := make(map[string]interface{})
			for k, v := range appErr.Context {
				if k != "password" && k != "token" && k != "secret" {
					publicContext[k] = v
				}
			}
			if len(publicContext) > 0 {
				response.Error.Context = publicContext
			}
		}
	} else {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
	}

	return response
}
