package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestAuth_Accepts_Valid_Token(t *testing.T) {
	req := require.New(t)

	var gotUserID string
	var gotScopes []string
	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotScopes = GetScopes(r.Context())
	}))

	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"realtime"},
	})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("u1", gotUserID)
	req.Equal([]string{"realtime"}, gotScopes)
}

func TestAuth_Rejects_Missing_Header(t *testing.T) {
	req := require.New(t)

	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestAuth_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)

	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	req := require.New(t)

	h := Auth(testSecret)(RequireScope("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"realtime"},
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	req.Equal(http.StatusForbidden, rec.Code)
}
