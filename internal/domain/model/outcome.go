package model

import (
	"math"
	"time"
)

// UnknownName is shown for faces the remote service did not recognize.
const UnknownName = "Unknown"

// RegisteredUserName is shown when a recognized id is missing from the roster.
const RegisteredUserName = "Registered User"

// Percent converts a [0,1] confidence into a percentage with one decimal.
func Percent(confidence float64) float64 {
	return math.Round(confidence*1000) / 10
}

// RecognitionOutcome is the result of one remote recognition call.
type RecognitionOutcome struct {
	Recognized bool      `json:"recognized"`
	SubjectID  *string   `json:"subject_id,omitempty"`
	Accuracy   float64   `json:"accuracy"` // 0-100, one decimal
	Label      string    `json:"label"`
	Message    string    `json:"message,omitempty"`
	EventID    string    `json:"event_id,omitempty"`
	EventName  string    `json:"event_name"`
	Image      []byte    `json:"-"`
	At         time.Time `json:"at"`
}

// LogEntry is one row of the operator-visible detection log.
type LogEntry struct {
	ID           string    `json:"id"`
	EmployeeName string    `json:"employee_name"`
	Accuracy     float64   `json:"accuracy"`
	Image        []byte    `json:"image,omitempty"` // cropped JPEG
	Timestamp    time.Time `json:"timestamp"`
	Recognized   bool      `json:"is_recognized"`
	EventName    string    `json:"event_name"`
}
