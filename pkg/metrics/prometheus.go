// Package metrics provides Prometheus metrics for the kiosk recognition daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the kiosk.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Capture
	streaming     prometheus.Gauge
	captureStarts *prometheus.CounterVec
	frameErrors   prometheus.Counter

	// Detection / render loop
	renderTicks      prometheus.Counter
	facesDetected    prometheus.Counter
	detectionErrors  prometheus.Counter
	detectionLatency prometheus.Histogram

	// Recognition dispatch
	dispatchAttempts   *prometheus.CounterVec
	dispatchSkips      *prometheus.CounterVec
	recognitionLatency prometheus.Histogram
	inFlight           prometheus.Gauge
	cropErrors         prometheus.Counter

	// Detection log
	logSize      prometheus.Gauge
	logEvictions *prometheus.CounterVec

	// Check-in pipeline
	checkinQueueSize     prometheus.Gauge
	checkinQueueCapacity prometheus.Gauge
	checkins             *prometheus.CounterVec
	checkinLatency       prometheus.Histogram
	checkinWorkers       prometheus.Gauge

	// Live stream
	liveClients prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "kiosk",
		subsystem:        "recognition",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	m.streaming = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("camera_streaming"),
		Help:        "1 while a capture session is active",
		ConstLabels: m.customLabels,
	})

	m.captureStarts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("camera_starts_total"),
			Help:        "Camera start attempts by result (ok, permission_denied, no_device, device_busy, unknown)",
			ConstLabels: m.customLabels,
		},
		[]string{"result"},
	)

	m.frameErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("frame_read_errors_total"),
		Help:        "Frames that could not be read from the camera",
		ConstLabels: m.customLabels,
	})

	m.renderTicks = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("render_ticks_total"),
		Help:        "Render loop iterations",
		ConstLabels: m.customLabels,
	})

	m.facesDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("faces_detected_total"),
		Help:        "Render ticks that produced a face detection",
		ConstLabels: m.customLabels,
	})

	m.detectionErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("detection_errors_total"),
		Help:        "Detector failures, each treated as no detection",
		ConstLabels: m.customLabels,
	})

	m.detectionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("detection_latency_milliseconds"),
		Help:        "Detector pass latency in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.customLabels,
	})

	m.dispatchAttempts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("dispatch_total"),
			Help:        "Recognition dispatches by final state (resolved, failed, aborted)",
			ConstLabels: m.customLabels,
		},
		[]string{"result"},
	)

	m.dispatchSkips = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("dispatch_skipped_total"),
			Help:        "Dispatch timer ticks skipped by the guard, by reason",
			ConstLabels: m.customLabels,
		},
		[]string{"reason"},
	)

	m.recognitionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("recognition_latency_milliseconds"),
		Help:        "Remote recognition round-trip latency in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.customLabels,
	})

	m.inFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("recognition_in_flight"),
		Help:        "Recognition requests awaiting a response (0 or 1)",
		ConstLabels: m.customLabels,
	})

	m.cropErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("crop_errors_total"),
		Help:        "Dispatch attempts aborted because the face crop failed",
		ConstLabels: m.customLabels,
	})

	m.logSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("detection_log_size"),
		Help:        "Entries currently shown in the detection log",
		ConstLabels: m.customLabels,
	})

	m.logEvictions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("detection_log_removals_total"),
			Help:        "Detection log removals by cause (capacity, expired)",
			ConstLabels: m.customLabels,
		},
		[]string{"cause"},
	)

	m.checkinQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("checkin_queue_size"),
		Help:        "Attendance check-ins waiting to be submitted",
		ConstLabels: m.customLabels,
	})

	m.checkinQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("checkin_queue_capacity"),
		Help:        "Capacity of the attendance check-in queue",
		ConstLabels: m.customLabels,
	})

	m.checkins = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("checkins_total"),
			Help:        "Attendance check-ins by result (enqueued, duplicate, rejected, sent, failed)",
			ConstLabels: m.customLabels,
		},
		[]string{"result"},
	)

	m.checkinLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("checkin_latency_milliseconds"),
		Help:        "Attendance submission latency in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.customLabels,
	})

	m.checkinWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("checkin_workers"),
		Help:        "Running attendance submission workers",
		ConstLabels: m.customLabels,
	})

	m.liveClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("live_clients"),
		Help:        "Connected live outcome stream clients",
		ConstLabels: m.customLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Errors by component and type",
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "HTTP errors by endpoint, method and type",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: m.customLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: m.customLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.customLabels,
	})
}

// UpdateStreaming flips the camera streaming gauge.
func UpdateStreaming(streaming bool) {
	if streaming {
		globalManager.streaming.Set(1)
		return
	}
	globalManager.streaming.Set(0)
}

// RecordCaptureStart counts a camera start attempt by result.
func RecordCaptureStart(result string) {
	globalManager.captureStarts.WithLabelValues(result).Inc()
}

// RecordFrameError counts a failed frame read.
func RecordFrameError() {
	globalManager.frameErrors.Inc()
}

// RecordRenderTick counts a render loop iteration.
func RecordRenderTick() {
	globalManager.renderTicks.Inc()
}

// RecordFaceDetected counts a tick that produced a detection.
func RecordFaceDetected() {
	globalManager.facesDetected.Inc()
}

// RecordDetectionError counts a detector failure.
func RecordDetectionError() {
	globalManager.detectionErrors.Inc()
}

// RecordDetectionLatency records detector latency in milliseconds.
func RecordDetectionLatency(latencyMs float64) {
	globalManager.detectionLatency.Observe(latencyMs)
}

// RecordDispatch counts a dispatch that reached a final state.
func RecordDispatch(result string) {
	globalManager.dispatchAttempts.WithLabelValues(result).Inc()
}

// RecordDispatchSkip counts a dispatch tick skipped by the guard.
func RecordDispatchSkip(reason string) {
	globalManager.dispatchSkips.WithLabelValues(reason).Inc()
}

// RecordRecognitionLatency records the remote round-trip in milliseconds.
func RecordRecognitionLatency(latencyMs float64) {
	globalManager.recognitionLatency.Observe(latencyMs)
}

// UpdateInFlight sets the number of recognition requests awaiting a response.
func UpdateInFlight(n int) {
	globalManager.inFlight.Set(float64(n))
}

// RecordCropError counts an aborted capture.
func RecordCropError() {
	globalManager.cropErrors.Inc()
}

// UpdateLogSize sets the detection log size.
func UpdateLogSize(size int) {
	globalManager.logSize.Set(float64(size))
}

// RecordLogRemoval counts a detection log removal by cause.
func RecordLogRemoval(cause string) {
	globalManager.logEvictions.WithLabelValues(cause).Inc()
}

// UpdateCheckinQueueSize sets the current check-in backlog.
func UpdateCheckinQueueSize(size int) {
	globalManager.checkinQueueSize.Set(float64(size))
}

// UpdateCheckinQueueCapacity sets the check-in queue capacity.
func UpdateCheckinQueueCapacity(capacity int) {
	globalManager.checkinQueueCapacity.Set(float64(capacity))
}

// RecordCheckin counts a check-in by result.
func RecordCheckin(result string) {
	globalManager.checkins.WithLabelValues(result).Inc()
}

// RecordCheckinLatency records submission latency in milliseconds.
func RecordCheckinLatency(latencyMs float64) {
	globalManager.checkinLatency.Observe(latencyMs)
}

// UpdateCheckinWorkers sets the number of running check-in workers.
func UpdateCheckinWorkers(count int) {
	globalManager.checkinWorkers.Set(float64(count))
}

// UpdateLiveClients sets the number of connected live stream clients.
func UpdateLiveClients(count int) {
	globalManager.liveClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
