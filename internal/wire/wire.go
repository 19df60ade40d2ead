// Package wire defines the gateway message envelope and the group naming
// contract shared by the server-side publisher and the client connection
// manager.
package wire

import (
	"strconv"
	"strings"
)

// Message is the envelope routed through the gateway. The payload is
// opaque to the transport; routing is by group name only.
type Message struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Recognized message types.
const (
	TypeChatMessage            = "chat_message"
	TypePartnerRequest         = "partner_request"
	TypePartnerRequestAccepted = "partner_request_accepted"
	TypePartnerRequestRejected = "partner_request_rejected"
	TypeSessionReminder        = "session_reminder"
	TypeGroupUpdate            = "group_update"
	TypeNotification           = "notification"
)

// UserGroup returns the per-user notification channel name.
func UserGroup(userID string) string {
	return "user-" + userID
}

// PartnerGroup returns the pairwise channel name for two principals. The
// ids are ordered ascending before concatenation so both participants
// compute the identical name independently. Numeric ids compare
// numerically, anything else lexicographically.
func PartnerGroup(a, b string) string {
	if less(b, a) {
		a, b = b, a
	}
	return "partner_" + a + "_" + b
}

func less(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return strings.Compare(a, b) < 0
}
