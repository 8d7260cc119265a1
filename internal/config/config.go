// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8765".
	Addr string `koanf:"addr"`

	// HeartbeatIntervalSecs is the ping cadence on each participant channel.
	HeartbeatIntervalSecs int `koanf:"heartbeat_interval_secs"`

	// LivenessTimeoutSecs disconnects a participant with no traffic or pong.
	LivenessTimeoutSecs int `koanf:"liveness_timeout_secs"`

	// AuthWaitSecs bounds how long an unauthenticated channel may idle.
	AuthWaitSecs int `koanf:"auth_wait_secs"`

	// MaxParticipants caps the roster size of one session.
	MaxParticipants int `koanf:"max_participants"`

	// ThrottleIntervalSecs is the violation aggregation window length.
	ThrottleIntervalSecs int `koanf:"throttle_interval_secs"`

	// ThrottleRetentionSecs evicts closed throttle windows older than this.
	ThrottleRetentionSecs int `koanf:"throttle_retention_secs"`

	// FocusAckTimeoutSecs marks a participant ComplianceUnknown when exceeded.
	FocusAckTimeoutSecs int `koanf:"focus_ack_timeout_secs"`

	// StreamMaxOutstanding bounds unacknowledged frames per recipient.
	StreamMaxOutstanding int `koanf:"stream_max_outstanding"`

	// StreamQuality selects the capture tier: low, medium, high.
	StreamQuality string `koanf:"stream_quality"`

	// StreamMonitor selects the monitor index to capture.
	StreamMonitor int `koanf:"stream_monitor"`

	// PasswordLength sets the generated session password length.
	PasswordLength int `koanf:"password_length"`

	// PersistQueueSize bounds the async persistence write queue.
	PersistQueueSize int `koanf:"persist_queue_size"`

	// PersistWorkers sets the number of persistence writer goroutines.
	PersistWorkers int `koanf:"persist_workers"`

	// DBPath locates the sqlite database file.
	DBPath string `koanf:"db_path"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and is
// currently unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:              "info",
		Addr:                  ":8765",
		HeartbeatIntervalSecs: 5,
		LivenessTimeoutSecs:   15,
		AuthWaitSecs:          10,
		MaxParticipants:       50,
		ThrottleIntervalSecs:  5,
		ThrottleRetentionSecs: 60,
		FocusAckTimeoutSecs:   10,
		StreamMaxOutstanding:  2,
		StreamQuality:         "medium",
		StreamMonitor:         0,
		PasswordLength:        12,
		PersistQueueSize:      10_000,
		PersistWorkers:        2,
		DBPath:                "focusd.db",
	}
	return c
}
