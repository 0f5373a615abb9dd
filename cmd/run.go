package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/kiosk/internal/adapters/http/api"
	"github.com/okian/kiosk/internal/adapters/http/site"
	service "github.com/okian/kiosk/internal/app"
	"github.com/okian/kiosk/internal/config"
	"github.com/okian/kiosk/pkg/logger"
	"github.com/okian/kiosk/pkg/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Camera control is limited to a few requests per second per kiosk.
const (
	controlRate  = 2
	controlBurst = 4
)

var startCamera bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the kiosk API and run the camera pipeline",
	Long: `Start the kiosk service and its HTTP API. The camera stays off until an
operator calls POST /camera/start, unless --start-camera is given.

Examples:
  # Run against the configured backend
  kiosk run

  # Demo without a backend
  KIOSK_SIMULATE=true kiosk run --start-camera`,
	Args: cobra.NoArgs,
	RunE: runKiosk,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&startCamera, "start-camera", false, "Open the camera as soon as the service starts")
}

func runKiosk(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log, err := initLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := build(ctx, cfg, localCamera, log)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.svc.Start(ctx); err != nil {
		return err
	}
	defer c.svc.Stop()

	if startCamera {
		if err := c.svc.StartCamera(ctx); err != nil {
			log.Warn(ctx, "camera did not start", logger.Error(err))
		}
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, c.svc)

	mux := http.NewServeMux()
	site.Register(ctx, mux)
	api.NewServer(c.svc,
		api.WithControlLimiter(rate.NewLimiter(controlRate, controlBurst)),
		api.WithLive(c.hub),
	).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Live clients hold hijacked connections that Shutdown does not close.
	c.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics copies gauges out of the service stats.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if n, ok := stats["log_size"].(int); ok {
		metrics.UpdateLogSize(n)
	}
	if n, ok := stats["checkin_queue"].(int); ok {
		metrics.UpdateCheckinQueueSize(n)
	}
	if n, ok := stats["checkin_workers"].(int); ok {
		metrics.UpdateCheckinWorkers(n)
	}
}
