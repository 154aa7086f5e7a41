package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddlewareThrottlesPerIP(t *testing.T) {
	handler := RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hot := "203.0.113.7"
	var throttled bool
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/badges", nil)
		req.Header.Set("X-Forwarded-For", hot)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if i == 0 {
			assert.Equal(t, http.StatusOK, rr.Code, "first request passes")
		}
		if rr.Code == http.StatusTooManyRequests {
			throttled = true
		}
	}
	assert.True(t, throttled, "burst exhaustion returns 429")

	// Other IPs keep their own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/badges", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestEnvInt(t *testing.T) {
	assert.Equal(t, 7, envInt("RATE_LIMIT_UNSET_FOR_TEST", 7))

	t.Setenv("RATE_LIMIT_SET_FOR_TEST", "12")
	assert.Equal(t, 12, envInt("RATE_LIMIT_SET_FOR_TEST", 7))

	for i, bad := range []string{"abc", "-3", "0"} {
		key := fmt.Sprintf("RATE_LIMIT_BAD_FOR_TEST_%d", i)
		t.Setenv(key, bad)
		assert.Equal(t, 7, envInt(key, 7))
	}
}
