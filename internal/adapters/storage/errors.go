package storage

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrOpenDatabase   = errors.New("open database failed")
	ErrUnknownSession = errors.New("unknown session")
	ErrClosed         = errors.New("storage closed")
)
