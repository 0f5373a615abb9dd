package main

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/kiosk/internal/adapters/backend"
	"github.com/okian/kiosk/internal/adapters/cache"
	"github.com/okian/kiosk/internal/adapters/camera"
	"github.com/okian/kiosk/internal/adapters/detector"
	"github.com/okian/kiosk/internal/adapters/http/live"
	"github.com/okian/kiosk/internal/capture"
	service "github.com/okian/kiosk/internal/app"
	"github.com/okian/kiosk/internal/config"
	"github.com/okian/kiosk/internal/domain/dedupe"
	"github.com/okian/kiosk/internal/domain/facedetect"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/recognition"
	"github.com/okian/kiosk/pkg/logger"
)

// Roster used when the kiosk runs without a backend.
const demoEventID = "evt-demo"

var (
	demoEvents = []model.Event{
		{ID: demoEventID, Title: "Demo Standup", Type: "meeting"},
	}
	demoEmployees = []model.Employee{
		{ID: "emp-001", FullName: "Alice Nguyen", Role: "employee"},
		{ID: "emp-002", FullName: "Bao Tran", Role: "employee"},
		{ID: "emp-003", FullName: "Chi Le", Role: "supervisor"},
	}
)

// initLogging configures the global logger from cfg.
func initLogging(cfg *config.Config) (logger.Logger, error) {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, 0, 0, 0))
	}
	if err := logger.Init(opts...); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return log, nil
}

// components is everything built from a Config.
type components struct {
	svc     *service.Service
	hub     *live.Hub
	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// build wires the kiosk service and its adapters. The camera opener is a
// parameter so callers can swap the local device.
func build(ctx context.Context, cfg *config.Config, opener capture.Opener, log logger.Logger) (*components, error) {
	c := &components{hub: live.NewHub(log.Named("live"))}
	c.closers = append(c.closers, c.hub.Close)

	opts := []service.Option{
		service.WithLogger(log.Named("kiosk")),
		service.WithCamera(opener, capture.Request{
			Index:  cfg.CameraDevice,
			Width:  cfg.CameraWidth,
			Height: cfg.CameraHeight,
		}),
		service.WithBroadcaster(c.hub),
		service.WithRenderInterval(cfg.RenderInterval()),
		service.WithRecognitionInterval(cfg.RecognitionInterval()),
		service.WithRecognitionTimeout(cfg.RecognitionTimeout()),
		service.WithLabelDurations(cfg.LabelDisplay(), cfg.UnknownLabelDisplay()),
		service.WithDetectionLog(cfg.LogCapacity, cfg.LogExpiry()),
	}

	if det, closeDet := buildDetector(ctx, cfg, log); det != nil {
		opts = append(opts, service.WithDetector(det))
		c.closers = append(c.closers, closeDet)
	}

	if cfg.Simulate {
		ids := make([]string, 0, len(demoEmployees))
		for _, e := range demoEmployees {
			ids = append(ids, e.ID)
		}
		event := cfg.EventID
		if event == "" {
			event = demoEventID
		}
		opts = append(opts,
			service.WithRecognizer(recognition.NewSimulated(
				recognition.WithSubjects(ids...),
				recognition.WithLatencyRange(
					time.Duration(cfg.SimulatedLatencyMinMS)*time.Millisecond,
					time.Duration(cfg.SimulatedLatencyMaxMS)*time.Millisecond),
				recognition.WithSeed(time.Now().UnixNano()),
			)),
			service.WithStaticRoster(demoEvents, demoEmployees),
			service.WithEvent(event),
		)
		if cfg.CheckinEnabled {
			log.Warn(ctx, "check-ins are disabled in simulate mode")
		}
		log.Info(ctx, "simulate mode: recognition runs locally", logger.String("event_id", event))
		c.svc = service.New(opts...)
		return c, nil
	}

	client := backend.New(cfg.BackendURL,
		backend.WithThreshold(cfg.RecognitionThreshold),
		backend.WithLogger(log.Named("backend")))
	if cfg.BackendToken != "" {
		client.SetTokenSource(backend.StaticToken(cfg.BackendToken))
	} else {
		session := backend.NewSession(client, cfg.BackendUsername, cfg.BackendPassword)
		client.SetTokenSource(session)
		opts = append(opts, service.WithAuthorizer(session))
	}
	opts = append(opts,
		service.WithRecognizer(client),
		service.WithRosterSource(client),
		service.WithEvent(cfg.EventID),
	)

	if cfg.CheckinEnabled {
		var dd dedupe.Deduper = dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(cfg.CheckinDedupeSize),
			dedupe.WithTTL(cfg.CheckinDedupeWindow()))
		if cfg.RedisAddr != "" {
			rc := cache.NewClient(ctx, cache.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, log.Named("redis"))
			c.closers = append(c.closers, func() { _ = rc.Close() })
			dd = cache.NewRedisDeduper(rc, cfg.CheckinDedupeWindow(), dd, log.Named("dedupe"))
		}
		opts = append(opts,
			service.WithCheckins(client, cfg.CheckinWorkers, cfg.CheckinQueueSize, cfg.CheckinRatePerSec),
			service.WithDeduper(dd),
		)
	}

	log.Info(ctx, "backend configured",
		logger.String("url", client.BaseURL()),
		logger.Bool("static_token", cfg.BackendToken != ""),
		logger.Bool("checkins", cfg.CheckinEnabled))
	c.svc = service.New(opts...)
	return c, nil
}

// buildDetector loads the face model. Without one the kiosk still streams but
// never dispatches, since no face is ever latched.
func buildDetector(ctx context.Context, cfg *config.Config, log logger.Logger) (facedetect.Detector, func()) {
	if cfg.DetectorModel == "" {
		log.Warn(ctx, "no detector_model configured; faces will not be detected")
		return nil, nil
	}
	d, err := detector.New(cfg.DetectorModel, cfg.DetectorConfig,
		detector.WithInputSize(cfg.DetectorInputSize),
		detector.WithThreshold(cfg.DetectorThreshold))
	if err != nil {
		log.Warn(ctx, "face detector unavailable", logger.String("model", cfg.DetectorModel), logger.Error(err))
		return nil, nil
	}
	return d, func() { _ = d.Close() }
}

// localCamera is the production opener.
var localCamera capture.Opener = camera.Opener{}
