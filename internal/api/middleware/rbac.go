package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/natours/tours-api/internal/api/metrics"
	"github.com/natours/tours-api/internal/core/domain"
)

const msgForbidden = "You do not have permission to perform this action"

// RestrictTo lets a request through only when the user attached by Protect
// holds one of the allowed roles. It must run after Protect.
func RestrictTo(allowed domain.RoleSet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				metrics.AuthRejectionsTotal.WithLabelValues("no_token").Inc()
				return domain.Unauthorized(msgNotLoggedIn)
			}
			if !allowed.Allows(user.Role) {
				metrics.AuthRejectionsTotal.WithLabelValues("forbidden").Inc()
				return domain.Forbidden(msgForbidden)
			}
			return next(c)
		}
	}
}
