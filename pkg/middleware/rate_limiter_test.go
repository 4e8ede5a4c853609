package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, rpm, burst int) *RateLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRateLimiter(ctx, rpm, burst)
}

func TestRateLimiter_GetLimiter(t *testing.T) {
	t.Run("Success - burst then refill", func(t *testing.T) {
		// 120 req/min is one token every 0.5s
		rl := newTestLimiter(t, 120, 1)
		limiter := rl.GetLimiter("ip:192.168.1.1")

		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())

		time.Sleep(600 * time.Millisecond)
		assert.True(t, limiter.Allow())
	})

	t.Run("Success - keys are independent", func(t *testing.T) {
		rl := newTestLimiter(t, 2, 1)

		assert.True(t, rl.GetLimiter("ip:192.168.1.1").Allow())
		assert.True(t, rl.GetLimiter("ip:192.168.1.2").Allow())
		assert.False(t, rl.GetLimiter("ip:192.168.1.1").Allow())
	})

	t.Run("Success - idle visitors are evicted", func(t *testing.T) {
		rl := newTestLimiter(t, 60, 1)
		rl.GetLimiter("ip:10.0.0.1")
		rl.GetLimiter("ip:10.0.0.2")

		assert.Equal(t, 0, rl.evictIdle(time.Now()))
		assert.Equal(t, 2, rl.evictIdle(time.Now().Add(visitorIdleTimeout+time.Second)))
		assert.Empty(t, rl.visitors)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "success") }

	serve := func(rl *RateLimiter, ip string, actorID int) *httptest.ResponseRecorder {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lead-assignment/my-leads", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if actorID > 0 {
			c.Set(ActorIDKey, actorID)
		}
		_ = rl.RateLimitMiddleware()(ok)(c)
		return rec
	}

	t.Run("Error - second anonymous request is throttled", func(t *testing.T) {
		rl := newTestLimiter(t, 2, 1)

		assert.Equal(t, http.StatusOK, serve(rl, "192.168.1.1", 0).Code)

		rec := serve(rl, "192.168.1.1", 0)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("Success - workers behind one IP get separate buckets", func(t *testing.T) {
		rl := newTestLimiter(t, 2, 1)

		assert.Equal(t, http.StatusOK, serve(rl, "10.0.0.1", 1).Code)
		assert.Equal(t, http.StatusOK, serve(rl, "10.0.0.1", 2).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(rl, "10.0.0.1", 1).Code)
	})
}
