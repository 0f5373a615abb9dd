// Package recognition defines the contract for identifying a cropped face.
package recognition

import (
	"context"
	"errors"

	"github.com/okian/kiosk/internal/domain/model"
)

// Sentinel errors for recognition calls. Every one of them is a failed call.
var (
	ErrUnauthorized = errors.New("recognition: no valid token")
	ErrStatus       = errors.New("recognition: non-success status")
	ErrMalformed    = errors.New("recognition: malformed response")
	ErrTransport    = errors.New("recognition: transport failure")
)

// Response mirrors the JSON body returned by the recognize-crop endpoint.
type Response struct {
	UserID       *string     `json:"user_id"`
	Confidence   *float64    `json:"confidence"`
	Accuracy     *float64    `json:"accuracy"`
	IsRecognized bool        `json:"is_recognized"`
	Message      string      `json:"message"`
	BBox         *[4]float64 `json:"bbox"` // x1, y1, x2, y2 in crop space
}

// Matched reports whether the response names a recognized subject.
func (r Response) Matched() bool {
	return r.IsRecognized && r.UserID != nil && *r.UserID != ""
}

// Score returns the best available confidence in [0,1]: accuracy when
// present, otherwise confidence, otherwise zero.
func (r Response) Score() float64 {
	switch {
	case r.Accuracy != nil:
		return *r.Accuracy
	case r.Confidence != nil:
		return *r.Confidence
	default:
		return 0
	}
}

// Percent returns Score as a percentage with one decimal.
func (r Response) Percent() float64 {
	return model.Percent(r.Score())
}

// Recognizer sends one JPEG crop to a recognition service.
type Recognizer interface {
	// Recognize honors ctx for cancellation and deadline.
	Recognize(ctx context.Context, jpeg []byte) (Response, error)
}
