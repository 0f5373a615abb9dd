package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/kiosk/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.RecognitionIntervalMS, convey.ShouldEqual, 2000)
				convey.So(cfg.RecognitionTimeoutMS, convey.ShouldEqual, 10_000)
				convey.So(cfg.LogExpiryMS, convey.ShouldEqual, 5000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("KIOSK_ADDR", ":8080")
			_ = os.Setenv("KIOSK_RECOGNITION_INTERVAL_MS", "1500")
			_ = os.Setenv("KIOSK_LOG_CAPACITY", "5")
			_ = os.Setenv("KIOSK_DETECTOR_THRESHOLD", "0.6")
			_ = os.Setenv("KIOSK_CHECKIN_ENABLED", "true")
			_ = os.Setenv("KIOSK_EVENT_ID", "evt-7")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.RecognitionIntervalMS, convey.ShouldEqual, 1500)
				convey.So(cfg.LogCapacity, convey.ShouldEqual, 5)
				convey.So(cfg.DetectorThreshold, convey.ShouldEqual, 0.6)
				convey.So(cfg.CheckinEnabled, convey.ShouldBeTrue)
				convey.So(cfg.EventID, convey.ShouldEqual, "evt-7")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
# kiosk at the east entrance
addr: ":9090"
backend_url: "https://attendance.example.com"
camera_device: 2
log_capacity: 5   # smaller sidebar
recognition_timeout_ms: 4000
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("KIOSK_CONFIG", tmpFile)
			_ = os.Setenv("KIOSK_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BackendURL, convey.ShouldEqual, "https://attendance.example.com")
				convey.So(cfg.CameraDevice, convey.ShouldEqual, 2)
				convey.So(cfg.LogCapacity, convey.ShouldEqual, 5)
				convey.So(cfg.RecognitionTimeoutMS, convey.ShouldEqual, 4000)
				convey.So(cfg.LabelDisplayMS, convey.ShouldEqual, 3000)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("KIOSK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("KIOSK_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("KIOSK_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("KIOSK_RENDER_FPS", "fast")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"KIOSK_CONFIG",
		"KIOSK_ADDR",
		"KIOSK_RECOGNITION_INTERVAL_MS",
		"KIOSK_LOG_CAPACITY",
		"KIOSK_DETECTOR_THRESHOLD",
		"KIOSK_CHECKIN_ENABLED",
		"KIOSK_EVENT_ID",
		"KIOSK_RENDER_FPS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "kiosk-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
