package handler

import (
	"encoding/json"
	"net/http"

	"github.com/studysync/coordination-platform/internal/bus"
	"github.com/studysync/coordination-platform/internal/event"
	"github.com/studysync/coordination-platform/internal/middleware"
	"github.com/studysync/coordination-platform/pkg/logger"
)

// EventsHandler lets business-logic collaborators emit domain events
// after their synchronous persistence step completes.
type EventsHandler struct {
	bus    *bus.Bus
	logger *logger.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(b *bus.Bus, log *logger.Logger) *EventsHandler {
	return &EventsHandler{bus: b, logger: log}
}

type emitRequest struct {
	Kind           string         `json:"kind"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	GroupID        string         `json:"group_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// Emit handles POST /api/v1/events. The subject is always the
// authenticated principal; payload normalization happens here, at the
// emission boundary.
func (h *EventsHandler) Emit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := event.Kind(req.Kind)
	if !event.Known(kind) {
		writeError(w, http.StatusBadRequest, "unknown event kind")
		return
	}
	if err := middleware.ValidateEventData(req.Data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := []event.Option{
		event.WithSubject(middleware.GetUserID(r.Context())),
	}
	if req.GroupID != "" {
		opts = append(opts, event.WithGroup(req.GroupID))
	}
	if req.ConversationID != "" {
		opts = append(opts, event.WithConversation(req.ConversationID))
	}
	if req.Metadata != nil {
		opts = append(opts, event.WithMetadata(req.Metadata))
	}

	h.bus.Emit(kind, req.Data, opts...)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
