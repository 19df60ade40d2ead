package sideeffect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CalendarInvite describes a calendar entry for a scheduled study session.
type CalendarInvite struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Participants []string  `json:"participants"`
	Start        time.Time `json:"start"`
}

// Notifier is the external delivery collaborator (email, calendar).
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendCalendarInvite(ctx context.Context, invite CalendarInvite) error
}

// HTTPNotifier delivers through the hosted notification service.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotifier creates a notifier posting to the given service URL.
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendEmail delivers an email through the notification service.
func (n *HTTPNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	return n.post(ctx, "/v1/email", map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
}

// SendCalendarInvite creates a calendar entry for all participants.
func (n *HTTPNotifier) SendCalendarInvite(ctx context.Context, invite CalendarInvite) error {
	return n.post(ctx, "/v1/calendar", invite)
}

func (n *HTTPNotifier) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier discards all deliveries. Used when no notification service
// is configured.
type NopNotifier struct{}

func (NopNotifier) SendEmail(context.Context, string, string, string) error { return nil }

func (NopNotifier) SendCalendarInvite(context.Context, CalendarInvite) error { return nil }
