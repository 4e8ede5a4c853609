package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadledger/pkg/auth"
	"github.com/jordanlanch/leadledger/pkg/models"
)

// ActorIDKey is the context key JWTMiddleware stores the worker id under
const ActorIDKey = "actor_id"

// JWTMiddleware creates a JWT authentication middleware. It only proves who
// the caller is; what they may do is decided against the worker row.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "missing_token",
					Message: "Authorization header is required",
				})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token_format",
					Message: "Authorization header must be 'Bearer {token}'",
				})
			}

			claims, err := auth.ValidateJWT(parts[1], secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Token is invalid or expired",
				})
			}

			c.Set(ActorIDKey, claims.WorkerID)

			return next(c)
		}
	}
}

// ActorID returns the authenticated worker id, or 0 when the request carries
// none.
func ActorID(c echo.Context) int {
	id, _ := c.Get(ActorIDKey).(int)
	return id
}
