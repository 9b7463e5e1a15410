package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole admits callers holding any one of roles. There is no implicit
// superuser: admin routes list RoleAdmin explicitly.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		if !r.Valid() {
			panic(fmt.Sprintf("auth: RequireRole with invalid role %q", string(r)))
		}
		names[i] = string(r)
	}
	denied := fmt.Sprintf("required role: %s", strings.Join(names, " or "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !role.In(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}

// RequireAuthenticated admits any caller with a valid session.
func RequireAuthenticated() echo.MiddlewareFunc {
	return RequireRole(AllRoles...)
}
