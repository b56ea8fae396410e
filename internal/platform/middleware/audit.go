package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

// Audit logs every state-changing API call together with the principal that
// made it, so issues, deletions and sweeps can be traced to a user.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status, _ = StatusAndMessage(err)
			}

			evt := logger.Info().
				Str("audit", "mutation").
				Str("request_id", stringValue(c.Get(RequestIDKey))).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Str("remote_ip", c.RealIP())
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				evt = evt.Int("user_id", p.UserID).Str("username", p.Username).Str("role", p.Role)
			}
			evt.Msg("audit")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/") || path == "/api/auth/login" {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
