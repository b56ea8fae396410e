package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

// RequireRole allows the request when the principal holds one of roles.
// Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return apperr.Auth("access token required")
			}
			if p.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			if len(roles) == 1 && roles[0] == RoleAdmin {
				return apperr.Forbidden("admin access required")
			}
			return apperr.Forbidden(fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireAdmin is RequireRole(RoleAdmin).
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(RoleAdmin)
}

// ValidRole reports whether role is a known user role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff
}
