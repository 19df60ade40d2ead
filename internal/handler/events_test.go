package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studysync/coordination-platform/internal/bus"
	"github.com/studysync/coordination-platform/internal/event"
	"github.com/studysync/coordination-platform/internal/middleware"
	"github.com/studysync/coordination-platform/pkg/logger"
)

func emitRequestFor(userID, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func TestEmit_Publishes_Normalized_Event(t *testing.T) {
	req := require.New(t)
	b := bus.New(logger.NewNop())
	h := NewEventsHandler(b, logger.NewNop())

	var got event.Event
	b.Subscribe(event.KindSessionCreated, func(e event.Event) { got = e })

	rec := httptest.NewRecorder()
	h.Emit(rec, emitRequestFor("u1", `{
		"kind": "session:created",
		"data": {"session_id": "s1", "participants": ["u1", "u2"]},
		"group_id": "g1"
	}`))

	req.Equal(http.StatusAccepted, rec.Code)
	req.Equal(event.KindSessionCreated, got.Kind)
	req.Equal("u1", got.SubjectUserID)
	req.Equal("g1", got.GroupID)
	req.Equal("s1", got.StringField("session_id"))
	req.False(got.Timestamp.IsZero())
}

func TestEmit_Rejects_Unknown_Kind(t *testing.T) {
	req := require.New(t)
	b := bus.New(logger.NewNop())
	h := NewEventsHandler(b, logger.NewNop())

	var delivered int
	b.SubscribeAll(func(event.Event) { delivered++ })

	rec := httptest.NewRecorder()
	h.Emit(rec, emitRequestFor("u1", `{"kind": "session:exploded", "data": {}}`))

	req.Equal(http.StatusBadRequest, rec.Code)
	req.Zero(delivered)
}

func TestEmit_Rejects_Malformed_Body(t *testing.T) {
	req := require.New(t)
	h := NewEventsHandler(bus.New(logger.NewNop()), logger.NewNop())

	rec := httptest.NewRecorder()
	h.Emit(rec, emitRequestFor("u1", `not json`))

	req.Equal(http.StatusBadRequest, rec.Code)
}
