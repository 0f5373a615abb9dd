package api

import (
	"errors"
	"net/http"

	"github.com/okian/kiosk/internal/capture"
	"github.com/okian/kiosk/internal/domain/model"
)

// FrameDependencies exposes what the kiosk screen currently shows.
type FrameDependencies interface {
	// LatestJPEG returns the latest frame with the overlay drawn on it.
	LatestJPEG() ([]byte, error)
	Detections() []model.LogEntry
}

// FrameHandler serves the composed frame and the detection log.
type FrameHandler struct {
	deps FrameDependencies
}

// NewFrameHandler creates a new frame handler.
func NewFrameHandler(deps FrameDependencies) *FrameHandler {
	return &FrameHandler{deps: deps}
}

// HandleFrame handles GET /frame.jpg.
func (h *FrameHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	const op = "api.frame"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	img, err := h.deps.LatestJPEG()
	if err != nil {
		if errors.Is(err, capture.ErrNotStreaming) || errors.Is(err, capture.ErrNoFrame) {
			writeError(w, http.StatusServiceUnavailable, "no_frame", WrapKind(op, ErrUnavailable, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// HandleDetections handles GET /detections, newest first.
func (h *FrameHandler) HandleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entries := h.deps.Detections()
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
