package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned once a client has been closed for good
	ErrClientClosed = errors.New("client closed")
	// ErrSessionSuperseded reports an initialization replaced by a newer one
	ErrSessionSuperseded = errors.New("session superseded by a newer initialization")
	// ErrExecutorClosed is returned when submitting work to a stopped executor
	ErrExecutorClosed = errors.New("executor closed")
	// ErrCircuitOpen is returned while the remote circuit breaker rejects calls
	ErrCircuitOpen = errors.New("circuit open")
)

// -----------------------------
// ConfigError
// -----------------------------

type ConfigError struct {
	Field  string
	Reason string
}

func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// -----------------------------
// AuthError
// -----------------------------

type AuthError struct {
	StatusCode int
	Err        error
}

func NewAuthError(statusCode int, err error) *AuthError {
	return &AuthError{StatusCode: statusCode, Err: err}
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// -----------------------------
// NotFoundError
// -----------------------------

type NotFoundError struct {
	Flag string
}

func NewNotFoundError(flag string) *NotFoundError {
	return &NotFoundError{Flag: flag}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("evaluation not found: %s", e.Flag)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// -----------------------------
// TransportError
// -----------------------------

// TransportError covers unreachable backends and non-2xx responses.
// StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func NewTransportError(op string, statusCode int, err error) *TransportError {
	return &TransportError{Op: op, StatusCode: statusCode, Err: err}
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// StatusCode extracts the HTTP status carried by err, or zero
func StatusCode(err error) int {
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.StatusCode
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		return auth.StatusCode
	}
	return 0
}
