package chat_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrRateLimited       = errors.New("rate limited")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRetriesExhausted  = errors.New("retries exhausted")
)

// FetchError wraps a failed conversation load. Callers must surface it and
// never render an empty conversation in its place.
type FetchError struct {
	Cause error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch failed: %v", e.Cause) }
func (e *FetchError) Unwrap() error { return e.Cause }

// SendError wraps a failed message insert. Local state must be left untouched.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string { return fmt.Sprintf("send failed: %v", e.Cause) }
func (e *SendError) Unwrap() error { return e.Cause }

// StatusError wraps a failed delivery/read status update.
type StatusError struct {
	MessageID string
	Cause     error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status update failed for %s: %v", e.MessageID, e.Cause)
}
func (e *StatusError) Unwrap() error { return e.Cause }

// ConnectionError wraps a realtime channel failure. It drives the reconnect
// state machine rather than being surfaced as a hard error.
type ConnectionError struct {
	Channel string
	Cause   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Cause)
}
func (e *ConnectionError) Unwrap() error { return e.Cause }

// AuthError wraps a failed sign-in/sign-up/sign-out.
type AuthError struct {
	Op    string
	Cause error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth %s failed: %v", e.Op, e.Cause) }
func (e *AuthError) Unwrap() error { return e.Cause }

// PermissionError marks a write rejected by the store's authorization policy.
// It should prompt re-authentication, not a generic retry.
type PermissionError struct {
	Cause error
}

func (e *PermissionError) Error() string { return fmt.Sprintf("permission denied: %v", e.Cause) }
func (e *PermissionError) Unwrap() error { return e.Cause }

// IsPermission reports whether err is a PermissionError anywhere in its chain.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
