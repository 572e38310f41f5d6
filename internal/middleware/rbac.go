package middleware

import (
	"net/http"
	"strings"

	"storeadmin/internal/common"

	"github.com/labstack/echo/v4"
)

// RequireAdmin lets through only administrators whose e-mail is in allowed.
// An empty list admits every signed-in user.
func RequireAdmin(allowed []string) echo.MiddlewareFunc {
	admins := make(map[string]bool, len(allowed))
	for _, email := range allowed {
		admins[strings.ToLower(strings.TrimSpace(email))] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := common.GetUserFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			if len(admins) > 0 && !admins[user.Email] {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
			}
			return next(c)
		}
	}
}
