package hub

import (
	"time"

	"github.com/focusclass/focusd/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithAuthWait bounds how long a fresh connection may take to present its
// join message before being dropped.
func WithAuthWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.authWait = d
		}
	}
}

// WithHeartbeatInterval sets how often the authority pings all
// participants.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeatInterval = d
		}
	}
}

// WithLivenessTimeout sets how long a participant may stay silent before
// its connection is presumed dead.
func WithLivenessTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.livenessTimeout = d
		}
	}
}

// WithMaxParticipants caps the roster size.
func WithMaxParticipants(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxParticipants = n
		}
	}
}

// WithWriteTimeout bounds each outbound websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithEventBuffer sizes the inbound event channel.
func WithEventBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.eventBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(logger logger.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}
