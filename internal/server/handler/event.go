package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// EventService defines what the event handler requires from the service layer.
type EventService interface {
	Events(ctx context.Context, since uint64, limit int) ([]domain.Event, error)
}

// EventHandler serves reads of the committed event stream.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// listEventsResponse wraps the event listing.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
}

// ListEvents returns journaled events with seq > since, oldest first.
// GET /api/events?since=0&limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	since := parseUintQuery(r, "since", 0)
	limit := int(parseUintQuery(r, "limit", 100))
	if limit > 1000 {
		limit = 1000
	}

	events, err := h.events.Events(r.Context(), since, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.Uint64("since", since),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}
