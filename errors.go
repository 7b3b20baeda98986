package dlock

import "errors"

var (
	// ErrResourceBusy is returned (wrapped) by WithLock when the
	// resource is locked by another holder. Losing a race for a lock is
	// an expected outcome, distinct from a store failure.
	ErrResourceBusy = errors.New("dlock: resource is locked by another holder")

	// ErrClosed is returned when a manager is used after Close.
	ErrClosed = errors.New("dlock: manager is closed")
)
