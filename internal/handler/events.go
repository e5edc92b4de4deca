package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"nakamura/internal/authorizable"
	"nakamura/internal/event"
)

// EventsHandler lists recorded lifecycle events of an authorizable.
type EventsHandler struct {
	log    event.Log
	logger *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(log event.Log, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{log: log, logger: logger}
}

// List handles GET /api/v1/events/{id}?limit=N
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := authorizable.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid authorizable ID")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.log.ListByTarget(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list events", "target", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []event.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
