package sideeffect

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/studysync/coordination-platform/internal/event"
	"github.com/studysync/coordination-platform/internal/store"
	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
)

// GroupPublisher pushes wire messages onto gateway group channels.
// Satisfied by gateway.Publisher.
type GroupPublisher interface {
	Publish(group string, msg wire.Message) error
}

// Persistence is the slice of the store the bindings need.
type Persistence interface {
	CreateNotification(n store.Notification) (store.Notification, error)
	GroupMembers(groupID string) ([]string, error)
}

// Deps carries the collaborators the default bindings call.
type Deps struct {
	Notifier  Notifier
	Publisher GroupPublisher
	Store     Persistence
	Logger    *logger.Logger
}

// RegisterDefaults installs the platform's standard side-effect bindings.
// Each binding is independent; a failure in one never cancels another
// bound to the same kind.
func RegisterDefaults(r *Registry, deps Deps) {
	r.Bind(event.KindSessionCreated, "calendar-invite", calendarInvite(deps))
	r.Bind(event.KindBuddyRequestSent, "buddy-request-email", buddyRequestEmail(deps))
	r.Bind(event.KindBuddyRequestSent, "buddy-request-push", buddyRequestPush(deps))
	r.Bind(event.KindBuddyRequestAccepted, "buddy-response-push", buddyResponsePush(deps, wire.TypePartnerRequestAccepted))
	r.Bind(event.KindBuddyRequestRejected, "buddy-response-push", buddyResponsePush(deps, wire.TypePartnerRequestRejected))
	r.Bind(event.KindModuleCompleted, "completion-email", completionEmail(deps))
	r.Bind(event.KindGroupMemberJoined, "member-joined-notify", memberJoinedNotify(deps))
	r.Bind(event.KindChatMessageSent, "chat-fanout", chatFanout(deps))
	r.Bind(event.KindSessionReminder, "session-reminder", sessionReminder(deps))
}

// calendarInvite creates one calendar entry covering every participant of
// a newly scheduled session.
func calendarInvite(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		start, err := scheduledStart(e)
		if err != nil {
			return err
		}
		return deps.Notifier.SendCalendarInvite(ctx, CalendarInvite{
			SessionID:    e.StringField("session_id"),
			Title:        e.StringField("title"),
			Participants: e.Participants(),
			Start:        start,
		})
	}
}

func buddyRequestEmail(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		recipient := e.StringField("recipient_id")
		if recipient == "" {
			return fmt.Errorf("buddy request event missing recipient_id")
		}
		return deps.Notifier.SendEmail(ctx, recipient,
			"New study buddy request",
			fmt.Sprintf("You have a new study buddy request from %s.", e.SubjectUserID),
		)
	}
}

func buddyRequestPush(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		recipient := e.StringField("recipient_id")
		if recipient == "" {
			return fmt.Errorf("buddy request event missing recipient_id")
		}
		if _, err := deps.Store.CreateNotification(store.Notification{
			UserID: recipient,
			Kind:   string(e.Kind),
			Title:  "New study buddy request",
		}); err != nil {
			return err
		}
		return deps.Publisher.Publish(wire.UserGroup(recipient), wire.Message{
			Type:    wire.TypePartnerRequest,
			Payload: e.Data,
		})
	}
}

func buddyResponsePush(deps Deps, wireType string) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		recipient := e.StringField("recipient_id")
		if recipient == "" {
			return fmt.Errorf("buddy response event missing recipient_id")
		}
		return deps.Publisher.Publish(wire.UserGroup(recipient), wire.Message{
			Type:    wireType,
			Payload: e.Data,
		})
	}
}

// completionEmail congratulates a student on finishing a module. Partial
// progress events share the kind with completions upstream, so the 100%
// guard lives here.
func completionEmail(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		progress, ok := e.Progress()
		if !ok || progress < 100 {
			return nil
		}
		return deps.Notifier.SendEmail(ctx, e.SubjectUserID,
			"Module completed",
			fmt.Sprintf("Congratulations on completing %s!", e.StringField("module_title")),
		)
	}
}

// memberJoinedNotify tells existing group members about the new arrival,
// excluding the member who just joined.
func memberJoinedNotify(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		members, err := deps.Store.GroupMembers(e.GroupID)
		if err != nil {
			return err
		}
		existing := lo.Filter(members, func(id string, _ int) bool {
			return id != e.SubjectUserID
		})

		for _, memberID := range existing {
			if _, err := deps.Store.CreateNotification(store.Notification{
				UserID: memberID,
				Kind:   string(e.Kind),
				Title:  "A new member joined your study group",
			}); err != nil {
				return err
			}
			if err := deps.Notifier.SendEmail(ctx, memberID,
				"New study group member",
				fmt.Sprintf("%s joined your study group.", e.SubjectUserID),
			); err != nil {
				return err
			}
		}

		return deps.Publisher.Publish(e.GroupID, wire.Message{
			Type:    wire.TypeGroupUpdate,
			Payload: e.Data,
		})
	}
}

func chatFanout(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		channel := e.ConversationID
		if channel == "" {
			channel = e.GroupID
		}
		if channel == "" {
			return fmt.Errorf("chat event missing conversation channel")
		}
		return deps.Publisher.Publish(channel, wire.Message{
			Type:    wire.TypeChatMessage,
			Payload: e.Data,
		})
	}
}

func sessionReminder(deps Deps) HandlerFunc {
	return func(ctx context.Context, e event.Event) error {
		for _, participant := range e.Participants() {
			if _, err := deps.Store.CreateNotification(store.Notification{
				UserID: participant,
				Kind:   string(e.Kind),
				Title:  "Upcoming study session",
			}); err != nil {
				return err
			}
			if err := deps.Publisher.Publish(wire.UserGroup(participant), wire.Message{
				Type:    wire.TypeSessionReminder,
				Payload: e.Data,
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

func scheduledStart(e event.Event) (time.Time, error) {
	switch v := e.Data["scheduled_start"].(type) {
	case time.Time:
		return v, nil
	case string:
		start, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid scheduled_start: %w", err)
		}
		return start, nil
	}
	return time.Time{}, fmt.Errorf("session event missing scheduled_start")
}
