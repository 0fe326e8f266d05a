package models

import "errors"

var (
	// ErrInvalidInput marks missing or malformed fields at the classification
	// or ingestion boundary. Rejected, never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a disaster or alert config id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps failures of the underlying store.
	ErrPersistence = errors.New("persistence failure")
	// ErrTransport wraps failures publishing to a real-time or relay transport.
	ErrTransport = errors.New("transport failure")
)
