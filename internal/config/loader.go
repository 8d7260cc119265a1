package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if FOCUSD_CONFIG is set
//  3. env (prefix FOCUSD_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("FOCUSD_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: FOCUSD_ADDR, FOCUSD_MAX_PARTICIPANTS, ...
	// Map env keys like FOCUSD_MAX_PARTICIPANTS -> max_participants (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("FOCUSD_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "focusd_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Basic validation
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.ThrottleIntervalSecs <= 0 {
		return nil, fmt.Errorf("%w: throttle_interval_secs must be positive", ErrInvalidConfig)
	}
	if cfg.StreamMaxOutstanding <= 0 {
		return nil, fmt.Errorf("%w: stream_max_outstanding must be positive", ErrInvalidConfig)
	}
	if cfg.LivenessTimeoutSecs <= cfg.HeartbeatIntervalSecs {
		return nil, fmt.Errorf("%w: liveness_timeout_secs must exceed heartbeat_interval_secs", ErrInvalidConfig)
	}
	return &cfg, nil
}
