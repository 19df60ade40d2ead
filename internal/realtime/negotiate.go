package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Grant is a short-lived credential for opening one gateway session. The
// manager treats the token opaquely; only ExpiresAt is inspected.
type Grant struct {
	URL         string    `json:"url"`
	AccessToken string    `json:"access_token"`
	Groups      []string  `json:"groups"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Negotiator requests a fresh grant. A grant is never reused across a
// stop/start cycle.
type Negotiator interface {
	Negotiate(ctx context.Context) (Grant, error)
}

// HTTPNegotiator calls the platform's negotiation endpoint.
type HTTPNegotiator struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPNegotiator creates a negotiator. token is the caller's API
// bearer token, not a gateway credential.
func NewHTTPNegotiator(endpoint, token string) *HTTPNegotiator {
	return &HTTPNegotiator{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Negotiate requests a grant for the authenticated principal.
func (n *HTTPNegotiator) Negotiate(ctx context.Context) (Grant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, nil)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to build negotiation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("negotiation endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Grant{}, fmt.Errorf("negotiation denied: status %d", resp.StatusCode)
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return Grant{}, fmt.Errorf("failed to decode grant: %w", err)
	}
	if grant.URL == "" || grant.AccessToken == "" {
		return Grant{}, fmt.Errorf("negotiation returned incomplete grant")
	}
	return grant, nil
}
