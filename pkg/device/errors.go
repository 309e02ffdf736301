package device

import "errors"

// Package-level errors returned by Device lifecycle methods.
var (
	// ErrAlreadyStarted is returned when Start is called on a running device.
	ErrAlreadyStarted = errors.New("device: already started")

	// ErrNotStarted is returned when an operation requires a running device.
	ErrNotStarted = errors.New("device: not started")

	// ErrStorageRequired is returned when Config.Store is nil.
	ErrStorageRequired = errors.New("device: a storage backend is required")
)
