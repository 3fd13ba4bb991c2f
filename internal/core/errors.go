package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrPartialCommit     = errors.New("partial commit failure")
)

// ValidationError reports malformed input for a single transaction, row or rule.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteUnavailableError wraps a timeout or non-success response from the remote feed.
type RemoteUnavailableError struct {
	Op  string
	Err error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("remote %s unavailable: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

func (e *RemoteUnavailableError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

// PartialCommitError is returned when a bulk commit saved fewer items than it was sent.
// Items already saved are not rolled back.
type PartialCommitError struct {
	Saved  int
	Total  int
	Failed []BulkFailure
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("bulk commit saved %d of %d transactions", e.Saved, e.Total)
}

func (e *PartialCommitError) Is(target error) bool {
	return target == ErrPartialCommit
}

// Err returns a *PartialCommitError when r reports failures, nil otherwise.
func (r BulkResult) Err() error {
	if r.Saved >= r.Total && len(r.Failed) == 0 {
		return nil
	}
	return &PartialCommitError{Saved: r.Saved, Total: r.Total, Failed: r.Failed}
}
