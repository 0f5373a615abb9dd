package capture

import (
	"errors"
	"os"
	"strings"
	"syscall"
)

// Sentinel errors for camera acquisition. Acquisition failures are terminal for
// the attempt; the operator retries explicitly.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device found")
	ErrDeviceBusy       = errors.New("camera is in use by another application")
	ErrDeviceUnknown    = errors.New("camera error")
	ErrNotStreaming     = errors.New("camera is not streaming")
	ErrNoFrame          = errors.New("no frame available")
)

// Kind names used in status payloads and metrics labels.
const (
	KindOK               = "ok"
	KindPermissionDenied = "permission_denied"
	KindNoDevice         = "no_device"
	KindDeviceBusy       = "device_busy"
	KindUnknown          = "unknown"
)

// Classify maps an acquisition error onto one of the device sentinels.
// Errors already wrapping a sentinel keep it; OS errors are mapped by errno.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrNoDevice),
		errors.Is(err, ErrDeviceBusy), errors.Is(err, ErrDeviceUnknown):
		return err
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return &DeviceError{Kind: ErrPermissionDenied, Err: err}
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return &DeviceError{Kind: ErrNoDevice, Err: err}
	case errors.Is(err, syscall.EBUSY):
		return &DeviceError{Kind: ErrDeviceBusy, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not allowed"):
		return &DeviceError{Kind: ErrPermissionDenied, Err: err}
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return &DeviceError{Kind: ErrDeviceBusy, Err: err}
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no such"), strings.Contains(msg, "can't open"):
		return &DeviceError{Kind: ErrNoDevice, Err: err}
	}
	return &DeviceError{Kind: ErrDeviceUnknown, Err: err}
}

// KindOf returns the metrics/status kind name for err.
func KindOf(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNoDevice):
		return KindNoDevice
	case errors.Is(err, ErrDeviceBusy):
		return KindDeviceBusy
	default:
		return KindUnknown
	}
}

// Message returns the operator-facing text for an acquisition error.
func Message(err error) string {
	switch KindOf(err) {
	case KindOK:
		return ""
	case KindPermissionDenied:
		return "Camera access was denied. Grant the kiosk process access to the video device and try again."
	case KindNoDevice:
		return "No camera device is connected."
	case KindDeviceBusy:
		return "The camera is in use by another application. Close it and try again."
	default:
		return "Unknown camera error: " + err.Error()
	}
}

// DeviceError pairs a device sentinel with the underlying cause.
type DeviceError struct {
	Kind error
	Err  error
}

func (e *DeviceError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *DeviceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
