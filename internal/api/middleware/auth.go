package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/ocbridge/pkg/utils/response"
)

// AuthMiddleware checks the Authorization header against the configured
// API key. An empty key disables the check.
func AuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}
			auth := c.Request().Header.Get("Authorization")
			if auth == "" {
				return response.ErrorResponse(c, http.StatusUnauthorized, response.AuthenticationException, "Missing Authorization header")
			}
			auth = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if subtle.ConstantTimeCompare([]byte(auth), []byte(apiKey)) != 1 {
				return response.ErrorResponse(c, http.StatusUnauthorized, response.AuthenticationException, "Invalid API key")
			}
			return next(c)
		}
	}
}
