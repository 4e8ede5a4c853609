package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func runSecurityHeaders(t *testing.T, cfg SecurityHeadersConfig, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/lead-assignment/my-leads", nil), rec)
	return rec, SecurityHeaders(cfg)(h)(c)
}

func TestSecurityHeaders(t *testing.T) {
	ok := func(c echo.Context) error { return c.JSON(http.StatusOK, []string{}) }

	t.Run("Success - defaults", func(t *testing.T) {
		rec, err := runSecurityHeaders(t, SecurityHeadersConfig{}, ok)
		assert.NoError(t, err)
		assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rec.Header().Get("Content-Security-Policy"))
		assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("Success - custom policy keeps default referrer", func(t *testing.T) {
		rec, err := runSecurityHeaders(t, SecurityHeadersConfig{ContentSecurityPolicy: "default-src 'self'"}, ok)
		assert.NoError(t, err)
		assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
		assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	})

	t.Run("Success - headers set even when the handler fails", func(t *testing.T) {
		boom := errors.New("boom")
		rec, err := runSecurityHeaders(t, SecurityHeadersConfig{}, func(echo.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	})
}
