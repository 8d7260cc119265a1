package stream

import "errors"

// Sentinel kinds for streaming errors.
var (
	ErrCaptureUnavailable = errors.New("capture source unavailable")
	ErrAlreadyStreaming   = errors.New("already streaming")
	ErrNotStreaming       = errors.New("not streaming")
)
