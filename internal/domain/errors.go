package domain

import "errors"

var (
	// ErrRecordNotFound signals a missing catalog record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrSnapshotNotFound signals a missing saved filter snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInvalidInput signals malformed caller input, rejected before dispatch.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable signals a record store failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)
