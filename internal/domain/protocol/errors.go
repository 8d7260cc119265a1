package protocol

import "errors"

// Sentinel kinds for codec errors.
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed envelope")
)
