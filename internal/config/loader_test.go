package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/focusclass/focusd/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8765")
				convey.So(cfg.ThrottleIntervalSecs, convey.ShouldEqual, 5)
				convey.So(cfg.StreamQuality, convey.ShouldEqual, "medium")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FOCUSD_ADDR", ":9000")
			_ = os.Setenv("FOCUSD_MAX_PARTICIPANTS", "10")
			_ = os.Setenv("FOCUSD_THROTTLE_INTERVAL_SECS", "3")
			_ = os.Setenv("FOCUSD_STREAM_QUALITY", "high")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9000")
				convey.So(cfg.MaxParticipants, convey.ShouldEqual, 10)
				convey.So(cfg.ThrottleIntervalSecs, convey.ShouldEqual, 3)
				convey.So(cfg.StreamQuality, convey.ShouldEqual, "high")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":8900"
max_participants: 25
stream_max_outstanding: 4
password_length: 16
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FOCUSD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8900")
				convey.So(cfg.MaxParticipants, convey.ShouldEqual, 25)
				convey.So(cfg.StreamMaxOutstanding, convey.ShouldEqual, 4)
				convey.So(cfg.PasswordLength, convey.ShouldEqual, 16)
			})
		})

		convey.Convey("When loading config with invalid values", func() {
			_ = os.Setenv("FOCUSD_STREAM_MAX_OUTSTANDING", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should reject the config", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When liveness timeout does not exceed heartbeat interval", func() {
			_ = os.Setenv("FOCUSD_LIVENESS_TIMEOUT_SECS", "5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should reject the config", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// clearConfigEnvVars removes every FOCUSD_* variable used by tests.
func clearConfigEnvVars() {
	for _, key := range []string{
		"FOCUSD_CONFIG",
		"FOCUSD_ADDR",
		"FOCUSD_MAX_PARTICIPANTS",
		"FOCUSD_THROTTLE_INTERVAL_SECS",
		"FOCUSD_STREAM_QUALITY",
		"FOCUSD_STREAM_MAX_OUTSTANDING",
		"FOCUSD_LIVENESS_TIMEOUT_SECS",
	} {
		_ = os.Unsetenv(key)
	}
}

// createTempConfigFile writes yaml content to a temp file and returns its path.
func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "focusd-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	_ = f.Close()
	return f.Name()
}
