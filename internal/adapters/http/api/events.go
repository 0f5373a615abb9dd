package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/roster"
)

// EventDependencies lists and selects the event being checked into.
type EventDependencies interface {
	Events() []model.Event
	SelectEvent(id string) error
	Selected() (id, name string, ok bool)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type selectRequest struct {
	EventID string `json:"event_id"`
}

type selectedResponse struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Selected  bool   `json:"selected"`
}

// HandleList handles GET /events.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	events := h.deps.Events()
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleSelected handles GET and PUT /event. An empty event_id clears the selection.
func (h *EventsHandler) HandleSelected(w http.ResponseWriter, r *http.Request) {
	const op = "api.select_event"
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := h.deps.SelectEvent(req.EventID); err != nil {
			if errors.Is(err, roster.ErrUnknownEvent) {
				writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
	default:
		http.NotFound(w, r)
		return
	}
	id, name, ok := h.deps.Selected()
	writeJSON(w, http.StatusOK, selectedResponse{EventID: id, EventName: name, Selected: ok})
}
