package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forgedClerkJWT mints a token signed with a key Clerk never issued; the
// middleware has to reject it.
func forgedClerkJWT(t *testing.T, clerkID string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret-key-for-testing-only"))
	require.NoError(t, err)
	return signed
}

func authProbe() (http.Handler, *bool) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	return ClerkAuthMiddleware(next), &reached
}

func TestClerkAuthMiddlewareMissingHeader(t *testing.T) {
	handler, reached := authProbe()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, *reached)
}

func TestClerkAuthMiddlewareBadScheme(t *testing.T) {
	handler, reached := authProbe()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, *reached)
}

func TestClerkAuthMiddlewareForgedToken(t *testing.T) {
	handler, reached := authProbe()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	req.Header.Set("Authorization", "Bearer "+forgedClerkJWT(t, "user_forged"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, *reached)
}

func TestOptionalAuthMiddlewareLetsAnonymousThrough(t *testing.T) {
	var gotClerkID string
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClerkID, gotOK = GetClerkID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := OptionalAuthMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/challenges/abc/live", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, gotOK)
	assert.Empty(t, gotClerkID)
}

func TestGetClerkID(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClerkIDKey, "user_123")
	clerkID, ok := GetClerkID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user_123", clerkID)

	_, ok = GetClerkID(context.Background())
	assert.False(t, ok)
}
