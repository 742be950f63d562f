package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TargetError is a failure scoped to one recipient of a send.
type TargetError struct {
	Target string
	Err    error
}

func (e TargetError) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e TargetError) Unwrap() error { return e.Err }

// NetworkError means the relay could not be reached or the connection broke.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError carries a non-success status reported by the relay.
type HTTPError struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error %d", e.Code)
	}
	return fmt.Sprintf("http error %d: %s", e.Code, e.Message)
}

type UnregisteredUserError struct {
	ServiceID string
}

func (e *UnregisteredUserError) Error() string {
	return fmt.Sprintf("user %s is not registered", e.ServiceID)
}

// ChallengeError is returned when the server wants a spam challenge solved
// before accepting more sends.
type ChallengeError struct {
	Token      string
	RetryAfter time.Duration
}

func (e *ChallengeError) Error() string {
	return "server requires a challenge to be completed"
}

type OutgoingIdentityKeyError struct {
	ServiceID string
}

func (e *OutgoingIdentityKeyError) Error() string {
	return fmt.Sprintf("identity key changed for %s", e.ServiceID)
}

// SendMessageProtoError aggregates the per-target failures of a send that
// did not reach every recipient.
type SendMessageProtoError struct {
	Errors []TargetError
	Result *SendResult
}

func NewSendMessageProtoError(result *SendResult) *SendMessageProtoError {
	if result == nil {
		return &SendMessageProtoError{}
	}
	return &SendMessageProtoError{Errors: result.Failed, Result: result}
}

func (e *SendMessageProtoError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, te := range e.Errors {
		parts = append(parts, te.Error())
	}
	return fmt.Sprintf("send failed for %d target(s): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the per-target errors to errors.Is / errors.As.
func (e *SendMessageProtoError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, te := range e.Errors {
		out = append(out, te.Err)
	}
	return out
}

// StatusCode extracts the relay status carried by err, or -1.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	var unregistered *UnregisteredUserError
	if errors.As(err, &unregistered) {
		return http.StatusNotFound
	}
	var challenge *ChallengeError
	if errors.As(err, &challenge) {
		return 428
	}
	return -1
}

// WireError is how the relay reports a failure, either for a whole request
// or for one target.
type WireError struct {
	Target        string `json:"target,omitempty"`
	Status        int    `json:"status"`
	Kind          string `json:"kind,omitempty"`
	Message       string `json:"message,omitempty"`
	Token         string `json:"token,omitempty"`
	RetryAfterSec int    `json:"retryAfterSec,omitempty"`
}

// Wire kinds that take precedence over the status code.
const (
	WireKindUnregistered = "unregistered"
	WireKindIdentityKey  = "identityKey"
	WireKindChallenge    = "challenge"
)

// Err converts the wire form into a typed error.
func (w WireError) Err() error {
	retryAfter := time.Duration(w.RetryAfterSec) * time.Second
	switch {
	case w.Kind == WireKindUnregistered || w.Status == http.StatusNotFound:
		return &UnregisteredUserError{ServiceID: w.Target}
	case w.Kind == WireKindIdentityKey:
		return &OutgoingIdentityKeyError{ServiceID: w.Target}
	case w.Kind == WireKindChallenge || w.Status == 428:
		return &ChallengeError{Token: w.Token, RetryAfter: retryAfter}
	default:
		return &HTTPError{Code: w.Status, Message: w.Message, RetryAfter: retryAfter}
	}
}

// ToWire converts a typed error back into its wire form. Used by relays
// and test servers.
func ToWire(target string, err error) WireError {
	w := WireError{Target: target, Message: err.Error()}
	var (
		unregistered *UnregisteredUserError
		identity     *OutgoingIdentityKeyError
		challenge    *ChallengeError
		httpErr      *HTTPError
	)
	switch {
	case errors.As(err, &unregistered):
		w.Status, w.Kind = http.StatusNotFound, WireKindUnregistered
	case errors.As(err, &identity):
		w.Status, w.Kind = http.StatusConflict, WireKindIdentityKey
	case errors.As(err, &challenge):
		w.Status, w.Kind, w.Token = 428, WireKindChallenge, challenge.Token
		w.RetryAfterSec = int(challenge.RetryAfter / time.Second)
	case errors.As(err, &httpErr):
		w.Status = httpErr.Code
		w.RetryAfterSec = int(httpErr.RetryAfter / time.Second)
	default:
		w.Status = http.StatusInternalServerError
	}
	return w
}
