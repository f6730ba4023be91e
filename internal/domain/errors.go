package domain

import "errors"

var (
	// ErrValidation marks synchronously rejected input; never queued.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record or one owned by another requester.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a requester mismatch.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict marks an update rejected by the current record state.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks a durable-store write failure on the synchronous path.
	ErrStorage = errors.New("storage error")
	// ErrQueueUnavailable marks a broker publish or consume failure.
	ErrQueueUnavailable = errors.New("queue unavailable")
)
