package repository

import "errors"

var (
	// ErrValidation marks a malformed ingestion or query input. Not retried.
	ErrValidation = errors.New("validation failed")
	// ErrStorageUnavailable marks an unreachable store or a failed/timed-out query.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
