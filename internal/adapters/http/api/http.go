// Package api serves the kiosk's operator HTTP surface.
package api

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	CameraDependencies
	FrameDependencies
	EventDependencies
	StatsProvider
}

// Option configures a Server.
type Option func(*Server)

// WithControlLimiter rate-limits the camera and event control endpoints.
func WithControlLimiter(l *rate.Limiter) Option {
	return func(s *Server) {
		s.controlLimiter = l
	}
}

// WithLive serves live updates at /ws.
func WithLive(h http.Handler) Option {
	return func(s *Server) {
		s.live = h
	}
}

// Server wires HTTP routes for the kiosk.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	cameraHandler  *CameraHandler
	frameHandler   *FrameHandler
	eventsHandler  *EventsHandler
	live           http.Handler
	controlLimiter *rate.Limiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		cameraHandler: NewCameraHandler(deps),
		frameHandler:  NewFrameHandler(deps),
		eventsHandler: NewEventsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	control := func(h http.HandlerFunc) http.HandlerFunc { return RateLimit(h, s.controlLimiter) }

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/camera", MetricsMiddleware(s.cameraHandler.HandleStatus, "camera"))
	mux.HandleFunc("/camera/start", MetricsMiddleware(control(s.cameraHandler.HandleStart), "camera_start"))
	mux.HandleFunc("/camera/stop", MetricsMiddleware(control(s.cameraHandler.HandleStop), "camera_stop"))
	mux.HandleFunc("/frame.jpg", MetricsMiddleware(s.frameHandler.HandleFrame, "frame"))
	mux.HandleFunc("/detections", MetricsMiddleware(s.frameHandler.HandleDetections, "detections"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandleList, "events"))
	mux.HandleFunc("/event", MetricsMiddleware(control(s.eventsHandler.HandleSelected), "event"))
	if s.live != nil {
		mux.Handle("/ws", s.live)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
