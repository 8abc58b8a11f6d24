package httpapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/winnow/internal/auth"
)

// bearerAuthMiddleware guards the audit API with a single bearer token
// checked against the configured bcrypt hash. An empty hash disables the
// check; the health endpoint stays open for probes either way.
func bearerAuthMiddleware(tokenHash string) echo.MiddlewareFunc {
	hash := strings.TrimSpace(tokenHash)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hash == "" {
				return next(c)
			}
			if c.Path() == "/api/v1/health" {
				return next(c)
			}

			token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return unauthorized(c, "Missing bearer token")
			}
			if !auth.VerifyToken(token, hash) {
				return unauthorized(c, "Invalid bearer token")
			}
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	trimmed := strings.TrimSpace(header)
	if len(trimmed) <= len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(trimmed[len(prefix):])
}
