// Package throttle aggregates raw violation events into rate-limited
// reports per (participant, kind).
package throttle

import (
	"time"

	"github.com/focusclass/focusd/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithInterval sets the throttle window length.
func WithInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

// WithRetention sets how long closed windows are kept before eviction.
func WithRetention(retention time.Duration) Option {
	return func(e *Engine) {
		if retention > 0 {
			e.retention = retention
		}
	}
}

// WithBufferSize sets the report channel capacity.
func WithBufferSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(logger logger.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}
