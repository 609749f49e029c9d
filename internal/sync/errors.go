package sync

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies sync failures.
type ErrorKind string

const (
	// KindNotAuthenticated means no usable credentials exist.
	KindNotAuthenticated ErrorKind = "not_authenticated"

	// KindAuthExpired means the remote rejected the credentials; retried once after a refresh.
	KindAuthExpired ErrorKind = "auth_expired"

	// KindNetwork means the remote could not be reached; the next trigger retries.
	KindNetwork ErrorKind = "network"

	// KindRemoteNotFound means the remote file does not exist. Treated as "no remote yet".
	KindRemoteNotFound ErrorKind = "remote_not_found"

	// KindRateLimited means the remote asked the client to back off.
	KindRateLimited ErrorKind = "rate_limited"

	// KindLocalStore means the local dataset could not be read or its sync state updated.
	KindLocalStore ErrorKind = "local_store"

	// KindLocalApply means applying a dataset to the local store failed.
	KindLocalApply ErrorKind = "local_apply"

	// KindInvalidDataset means a dataset broke the unique key contract or could not be decoded.
	KindInvalidDataset ErrorKind = "invalid_dataset"

	// KindRemoteTaken means the remote file found by name belongs to another
	// local profile. Renaming one of the profiles resolves it.
	KindRemoteTaken ErrorKind = "remote_taken"
)

// Error is a classified sync failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error

	// RetryAfter is set for rate limited errors when the remote provided a delay.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain is a sync Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first sync Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Retryable reports whether a later attempt may succeed without user action.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited, KindAuthExpired, KindLocalStore, KindLocalApply:
		return true
	default:
		return false
	}
}
