package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/kiosk/internal/adapters/backend"
	"github.com/okian/kiosk/internal/capture"
)

// CameraDependencies controls the camera session.
type CameraDependencies interface {
	StartCamera(ctx context.Context) error
	StopCamera(ctx context.Context) error
	CameraStatus() capture.Status
}

// CameraHandler handles camera requests.
type CameraHandler struct {
	deps CameraDependencies
}

// NewCameraHandler creates a new camera handler.
func NewCameraHandler(deps CameraDependencies) *CameraHandler {
	return &CameraHandler{deps: deps}
}

// HandleStatus handles GET /camera.
func (h *CameraHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.CameraStatus())
}

// HandleStart handles POST /camera/start. Starting an active camera succeeds.
func (h *CameraHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.camera_start"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.StartCamera(r.Context()); err != nil {
		status, code := cameraStatus(err)
		writeJSON(w, status, errorResponse{Code: code, Message: cameraMessage(Wrap(op, err))})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.CameraStatus())
}

// HandleStop handles POST /camera/stop. Stopping an idle camera succeeds.
func (h *CameraHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.camera_stop"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.StopCamera(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.CameraStatus())
}

func cameraStatus(err error) (int, string) {
	switch {
	case errors.Is(err, backend.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden, capture.KindPermissionDenied
	case errors.Is(err, capture.ErrNoDevice):
		return http.StatusNotFound, capture.KindNoDevice
	case errors.Is(err, capture.ErrDeviceBusy):
		return http.StatusConflict, capture.KindDeviceBusy
	default:
		return http.StatusInternalServerError, capture.KindUnknown
	}
}

func cameraMessage(err error) string {
	if capture.KindOf(err) != capture.KindUnknown {
		return capture.Message(err)
	}
	return err.Error()
}
