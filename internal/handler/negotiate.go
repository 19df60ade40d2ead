// Package handler provides HTTP handlers for the API server.
package handler

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/middleware"
	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
	"github.com/studysync/coordination-platform/pkg/metrics"
)

// GroupSource resolves the group channels a principal may be scoped to.
// Satisfied by store.Store.
type GroupSource interface {
	GroupsFor(userID string) ([]string, error)
}

// GrantClaims are the claims embedded in a gateway access token.
type GrantClaims struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups"`
}

// NegotiateHandler issues short-lived, scope-limited gateway credentials.
type NegotiateHandler struct {
	gatewayURL string
	secret     string
	ttl        time.Duration
	groups     GroupSource
	logger     *logger.Logger
}

// NewNegotiateHandler creates the negotiation endpoint handler.
func NewNegotiateHandler(gatewayURL, secret string, ttl time.Duration, groups GroupSource, log *logger.Logger) *NegotiateHandler {
	return &NegotiateHandler{
		gatewayURL: gatewayURL,
		secret:     secret,
		ttl:        ttl,
		groups:     groups,
		logger:     log,
	}
}

// negotiateResponse is the grant handed to the connection manager.
type negotiateResponse struct {
	URL         string    `json:"url"`
	AccessToken string    `json:"access_token"`
	Groups      []string  `json:"groups"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Negotiate handles POST /api/v1/realtime/negotiate. Every call issues a
// fresh grant; grants are never reused across sessions.
func (h *NegotiateHandler) Negotiate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		metrics.NegotiationsTotal.WithLabelValues("unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	scoped, err := h.groups.GroupsFor(userID)
	if err != nil {
		metrics.NegotiationsTotal.WithLabelValues("error").Inc()
		h.logger.Error("failed to resolve scoped groups",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to issue grant")
		return
	}

	// The per-user notification channel is always in scope.
	groups := append([]string{wire.UserGroup(userID)}, scoped...)

	now := time.Now()
	expiresAt := now.Add(h.ttl)
	claims := GrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Groups: groups,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.secret))
	if err != nil {
		metrics.NegotiationsTotal.WithLabelValues("error").Inc()
		h.logger.Error("failed to sign grant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue grant")
		return
	}

	metrics.NegotiationsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, negotiateResponse{
		URL:         h.gatewayURL,
		AccessToken: token,
		Groups:      groups,
		ExpiresAt:   expiresAt.UTC(),
	})
}
