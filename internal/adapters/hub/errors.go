package hub

import "errors"

// Sentinel kinds for connection errors.
var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrConnectionClosed   = errors.New("connection closed")
)
