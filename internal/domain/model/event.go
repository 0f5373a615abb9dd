// Package model contains domain models passed between layers.
package model

import "time"

// UnknownEventName labels outcomes when no event is selected or the id is not on the roster.
const UnknownEventName = "Unknown Event"

// Event is one entry of the read-only event roster.
// Fields mirror GET /api/v1/events/.
type Event struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Type       string  `json:"event_type"`
	Department *string `json:"department,omitempty"`
}

// Employee is one entry of the read-only user roster.
// Fields mirror GET /api/v1/users/.
type Employee struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// CheckIn is an attendance record submitted for a recognized employee.
type CheckIn struct {
	ID       string    // client-side id used for logging and queue tracing
	UserID   string    // recognized subject
	EventID  string    // selected event
	Accuracy float64   // percent, one decimal
	At       time.Time // recognition time
}

// Key identifies a check-in for dedupe: one per employee per event.
func (c CheckIn) Key() string {
	return c.UserID + "|" + c.EventID
}
