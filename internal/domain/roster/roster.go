// Package roster caches the read-only event and employee lists for a session.
package roster

import (
	"errors"
	"sort"
	"sync"

	"github.com/okian/kiosk/internal/domain/model"
)

// ErrUnknownEvent is returned when selecting an id that is not on the roster.
var ErrUnknownEvent = errors.New("event not found in roster")

// Roster resolves employee names and holds the selected event.
type Roster struct {
	mu        sync.RWMutex
	employees map[string]model.Employee
	events    []model.Event
	selected  string
}

// New returns an empty roster.
func New() *Roster {
	return &Roster{employees: make(map[string]model.Employee)}
}

// SetEmployees replaces the employee list.
func (r *Roster) SetEmployees(list []model.Employee) {
	m := make(map[string]model.Employee, len(list))
	for _, e := range list {
		m[e.ID] = e
	}
	r.mu.Lock()
	r.employees = m
	r.mu.Unlock()
}

// SetEvents replaces the event list. A selection that is no longer listed is kept
// by id and reported with the unknown event name.
func (r *Roster) SetEvents(list []model.Event) {
	cp := append([]model.Event(nil), list...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Title < cp[j].Title })
	r.mu.Lock()
	r.events = cp
	r.mu.Unlock()
}

// NameOf returns the employee's full name, or a generic label when the id is
// unknown or has no name.
func (r *Roster) NameOf(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.employees[id]; ok && e.FullName != "" {
		return e.FullName
	}
	return model.RegisteredUserName
}

// Events returns the event list sorted by title.
func (r *Roster) Events() []model.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Event(nil), r.events...)
}

// EmployeeCount returns how many employees are cached.
func (r *Roster) EmployeeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.employees)
}

// Select makes id the current event. An empty id clears the selection.
func (r *Roster) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		r.selected = ""
		return nil
	}
	for _, e := range r.events {
		if e.ID == id {
			r.selected = id
			return nil
		}
	}
	return ErrUnknownEvent
}

// Preselect stores id without checking it against the roster, for
// configuration applied before the roster is loaded.
func (r *Roster) Preselect(id string) {
	r.mu.Lock()
	r.selected = id
	r.mu.Unlock()
}

// Selected returns the current event id and its display name.
func (r *Roster) Selected() (id, name string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return "", model.UnknownEventName, false
	}
	for _, e := range r.events {
		if e.ID == r.selected {
			return e.ID, e.Title, true
		}
	}
	return r.selected, model.UnknownEventName, true
}
