package core

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionArchived = errors.New("session is archived")
	ErrNoDataset       = errors.New("no dataset uploaded for session")
	ErrNoOpenEdit      = errors.New("no open edit")
)

// NetworkError means a request to the remote store could not complete.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteRejection is a non-2xx answer from the remote store.
type RemoteRejection struct {
	Op     string
	Status int
	Detail string
}

func (e *RemoteRejection) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote rejected %s (status %d): %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("remote rejected %s (status %d)", e.Op, e.Status)
}

// ValidationError is raised before any remote call is issued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsNetwork reports whether err is or wraps a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRejection reports whether err is or wraps a RemoteRejection.
func IsRejection(err error) bool {
	var re *RemoteRejection
	return errors.As(err, &re)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
