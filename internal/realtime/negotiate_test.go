package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPNegotiator_Returns_Grant(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal(http.MethodPost, r.Method)
		req.Equal("Bearer api-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Grant{
			URL:         "nats://gateway.test:4222",
			AccessToken: "scoped-token",
			Groups:      []string{"user-u1", "conv-42"},
			ExpiresAt:   time.Now().Add(15 * time.Minute).UTC(),
		})
	}))
	defer srv.Close()

	n := NewHTTPNegotiator(srv.URL, "api-token")
	grant, err := n.Negotiate(context.Background())

	req.NoError(err)
	req.Equal("nats://gateway.test:4222", grant.URL)
	req.Equal("scoped-token", grant.AccessToken)
	req.Equal([]string{"user-u1", "conv-42"}, grant.Groups)
	req.True(grant.ExpiresAt.After(time.Now()))
}

func TestHTTPNegotiator_Denied_Is_An_Error(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewHTTPNegotiator(srv.URL, "bad-token")
	_, err := n.Negotiate(context.Background())

	req.Error(err)
	req.Contains(err.Error(), "negotiation denied")
}

func TestHTTPNegotiator_Incomplete_Grant_Is_An_Error(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"url": "nats://gateway.test:4222"})
	}))
	defer srv.Close()

	n := NewHTTPNegotiator(srv.URL, "api-token")
	_, err := n.Negotiate(context.Background())

	req.Error(err)
}
