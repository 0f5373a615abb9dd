// Package config defines kiosk configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and KIOSK_ env vars on top of those defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// LogFile enables a rotating file sink when non-empty.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// BackendURL is the base URL of the attendance backend.
	BackendURL string `koanf:"backend_url"`

	// BackendToken is a static bearer token; when empty the kiosk logs in with
	// BackendUsername/BackendPassword.
	BackendToken    string `koanf:"backend_token"`
	BackendUsername string `koanf:"backend_username"`
	BackendPassword string `koanf:"backend_password"`

	// EventID preselects the event that outcomes are attributed to.
	EventID string `koanf:"event_id"`

	// Camera device index and ideal resolution hint.
	CameraDevice int `koanf:"camera_device"`
	CameraWidth  int `koanf:"camera_width"`
	CameraHeight int `koanf:"camera_height"`

	// RenderFPS drives the detect-and-draw loop.
	RenderFPS int `koanf:"render_fps"`

	// Detector model files (Caffe SSD or any net gocv.ReadNet understands).
	DetectorModel     string  `koanf:"detector_model"`
	DetectorConfig    string  `koanf:"detector_config"`
	DetectorInputSize int     `koanf:"detector_input_size"`
	DetectorThreshold float64 `koanf:"detector_threshold"`

	// Recognition dispatch cadence, request bound and remote similarity threshold.
	RecognitionIntervalMS int     `koanf:"recognition_interval_ms"`
	RecognitionTimeoutMS  int     `koanf:"recognition_timeout_ms"`
	RecognitionThreshold  float64 `koanf:"recognition_threshold"`

	// How long a recognized / unknown label stays on the overlay.
	LabelDisplayMS        int `koanf:"label_display_ms"`
	UnknownLabelDisplayMS int `koanf:"unknown_label_display_ms"`

	// Detection log capacity and per-entry display duration.
	LogCapacity int `koanf:"log_capacity"`
	LogExpiryMS int `koanf:"log_expiry_ms"`

	// Attendance check-in pipeline.
	CheckinEnabled    bool    `koanf:"checkin_enabled"`
	CheckinQueueSize  int     `koanf:"checkin_queue_size"`
	CheckinWorkers    int     `koanf:"checkin_workers"`
	CheckinRatePerSec float64 `koanf:"checkin_rate_per_sec"`
	CheckinDedupeSize int     `koanf:"checkin_dedupe_size"`
	CheckinDedupeTTL  int     `koanf:"checkin_dedupe_ttl_ms"`

	// Optional redis for dedupe shared across kiosks.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Simulate replaces the remote recognizer with a local simulation.
	Simulate bool `koanf:"simulate"`

	// SimulatedLatencyMinMS and SimulatedLatencyMaxMS bound the simulated remote latency.
	SimulatedLatencyMinMS int `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int `koanf:"simulated_latency_max_ms"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		BackendURL:            "http://localhost:8000",
		CameraDevice:          0,
		CameraWidth:           1280,
		CameraHeight:          720,
		RenderFPS:             30,
		DetectorInputSize:     224,
		DetectorThreshold:     0.5,
		RecognitionIntervalMS: 2000,
		RecognitionTimeoutMS:  10_000,
		LabelDisplayMS:        3000,
		UnknownLabelDisplayMS: 1000,
		LogCapacity:           10,
		LogExpiryMS:           5000,
		CheckinEnabled:        false,
		CheckinQueueSize:      1024,
		CheckinWorkers:        2,
		CheckinRatePerSec:     5,
		CheckinDedupeSize:     10_000,
		CheckinDedupeTTL:      int((12 * time.Hour).Milliseconds()),
		SimulatedLatencyMinMS: 80,
		SimulatedLatencyMaxMS: 150,
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Addr == "" {
		add("addr must not be empty")
	}
	if c.BackendURL == "" && !c.Simulate {
		add("backend_url must not be empty")
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		add("camera resolution must be positive, got %dx%d", c.CameraWidth, c.CameraHeight)
	}
	if c.RenderFPS <= 0 {
		add("render_fps must be positive")
	}
	if c.DetectorInputSize <= 0 {
		add("detector_input_size must be positive")
	}
	if c.DetectorThreshold < 0 || c.DetectorThreshold > 1 {
		add("detector_threshold must be in [0,1]")
	}
	if c.RecognitionIntervalMS <= 0 {
		add("recognition_interval_ms must be positive")
	}
	if c.RecognitionTimeoutMS <= 0 {
		add("recognition_timeout_ms must be positive")
	}
	if c.RecognitionThreshold < 0 || c.RecognitionThreshold > 1 {
		add("recognition_threshold must be in [0,1]")
	}
	if c.LabelDisplayMS <= 0 || c.UnknownLabelDisplayMS <= 0 {
		add("label display durations must be positive")
	}
	if c.LogCapacity <= 0 {
		add("log_capacity must be positive")
	}
	if c.LogExpiryMS <= 0 {
		add("log_expiry_ms must be positive")
	}
	if c.CheckinEnabled {
		if c.CheckinQueueSize <= 0 || c.CheckinWorkers <= 0 {
			add("checkin queue size and workers must be positive")
		}
		if c.CheckinRatePerSec <= 0 {
			add("checkin_rate_per_sec must be positive")
		}
	}
	if c.SimulatedLatencyMinMS < 0 || c.SimulatedLatencyMaxMS < c.SimulatedLatencyMinMS {
		add("simulated latency range is invalid")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RecognitionInterval returns the dispatch period.
func (c *Config) RecognitionInterval() time.Duration {
	return time.Duration(c.RecognitionIntervalMS) * time.Millisecond
}

// RecognitionTimeout returns the remote request bound.
func (c *Config) RecognitionTimeout() time.Duration {
	return time.Duration(c.RecognitionTimeoutMS) * time.Millisecond
}

// RenderInterval returns the period of the render loop.
func (c *Config) RenderInterval() time.Duration {
	return time.Second / time.Duration(c.RenderFPS)
}

// LabelDisplay returns how long a recognized label is shown.
func (c *Config) LabelDisplay() time.Duration {
	return time.Duration(c.LabelDisplayMS) * time.Millisecond
}

// UnknownLabelDisplay returns how long an unknown or error label is shown.
func (c *Config) UnknownLabelDisplay() time.Duration {
	return time.Duration(c.UnknownLabelDisplayMS) * time.Millisecond
}

// LogExpiry returns the per-entry display duration of the detection log.
func (c *Config) LogExpiry() time.Duration {
	return time.Duration(c.LogExpiryMS) * time.Millisecond
}

// CheckinDedupeWindow returns how long a check-in key stays recorded in redis.
func (c *Config) CheckinDedupeWindow() time.Duration {
	return time.Duration(c.CheckinDedupeTTL) * time.Millisecond
}
