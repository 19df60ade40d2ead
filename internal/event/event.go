// Package event defines the domain event envelope and the closed set of
// event kinds the platform emits.
package event

import (
	"time"
)

// Kind identifies a domain event type.
type Kind string

const (
	// User lifecycle
	KindUserRegistered Kind = "user:registered"
	KindUserDeleted    Kind = "user:deleted"

	// Enrollment
	KindCourseEnrolled   Kind = "course:enrolled"
	KindCourseUnenrolled Kind = "course:unenrolled"

	// Progress
	KindModuleProgress  Kind = "module:progress"
	KindModuleCompleted Kind = "module:completed"

	// Partner matching
	KindBuddyRequestSent     Kind = "buddy:request_sent"
	KindBuddyRequestAccepted Kind = "buddy:request_accepted"
	KindBuddyRequestRejected Kind = "buddy:request_rejected"

	// Session lifecycle
	KindSessionCreated   Kind = "session:created"
	KindSessionUpdated   Kind = "session:updated"
	KindSessionCancelled Kind = "session:cancelled"
	KindSessionReminder  Kind = "session:reminder"

	// Group membership
	KindGroupCreated      Kind = "group:created"
	KindGroupMemberJoined Kind = "group:member_joined"
	KindGroupMemberLeft   Kind = "group:member_left"

	// Notifications
	KindNotificationCreated Kind = "notification:created"

	// Chat
	KindChatMessageSent Kind = "chat:message_sent"

	// Note sharing
	KindNoteShared Kind = "note:shared"
)

var kinds = map[Kind]struct{}{
	KindUserRegistered:       {},
	KindUserDeleted:          {},
	KindCourseEnrolled:       {},
	KindCourseUnenrolled:     {},
	KindModuleProgress:       {},
	KindModuleCompleted:      {},
	KindBuddyRequestSent:     {},
	KindBuddyRequestAccepted: {},
	KindBuddyRequestRejected: {},
	KindSessionCreated:       {},
	KindSessionUpdated:       {},
	KindSessionCancelled:     {},
	KindSessionReminder:      {},
	KindGroupCreated:         {},
	KindGroupMemberJoined:    {},
	KindGroupMemberLeft:      {},
	KindNotificationCreated:  {},
	KindChatMessageSent:      {},
	KindNoteShared:           {},
}

// Known reports whether k belongs to the closed kind registry.
func Known(k Kind) bool {
	_, ok := kinds[k]
	return ok
}

// Event is an immutable record of a domain state change. The envelope is
// normalized once at the emission boundary; consumers never reconcile
// payload field variants themselves.
type Event struct {
	Kind           Kind           `json:"kind"`
	Data           map[string]any `json:"data"`
	SubjectUserID  string         `json:"subject_user_id,omitempty"`
	GroupID        string         `json:"group_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Option customizes an event at emission time.
type Option func(*Event)

// WithSubject sets the user the event is about.
func WithSubject(userID string) Option {
	return func(e *Event) { e.SubjectUserID = userID }
}

// WithGroup sets the study group the event concerns.
func WithGroup(groupID string) Option {
	return func(e *Event) { e.GroupID = groupID }
}

// WithConversation sets the conversation the event concerns.
func WithConversation(conversationID string) Option {
	return func(e *Event) { e.ConversationID = conversationID }
}

// WithMetadata attaches caller metadata to the event.
func WithMetadata(md map[string]any) Option {
	return func(e *Event) { e.Metadata = md }
}

// New builds an event envelope. The timestamp is assigned here, never by
// the caller.
func New(kind Kind, data map[string]any, opts ...Option) Event {
	e := Event{
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Progress returns the numeric progress value carried in the payload, if
// present. JSON decoding yields float64 for numbers; emitters using ints
// are accepted too.
func (e Event) Progress() (float64, bool) {
	v, ok := e.Data["progress"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Participants returns the participant user ids carried in the payload.
func (e Event) Participants() []string {
	v, ok := e.Data["participants"]
	if !ok {
		return nil
	}
	switch ids := v.(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringField returns a string payload field, or "" when absent.
func (e Event) StringField(key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}
