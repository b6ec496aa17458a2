package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/natours/tours-api/internal/api/metrics"
	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const (
	// CookieName carries the session token for browser clients.
	CookieName = "jwt"

	userKey = "user"

	msgNotLoggedIn = "You are not logged in! Please log in to get access."
)

// Protect requires a valid session. The token is taken from an
// "Authorization: Bearer" header, else from the jwt cookie. On success the
// resolved user is available through CurrentUser.
func Protect(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFromRequest(c)
			if token == "" {
				metrics.AuthRejectionsTotal.WithLabelValues("no_token").Inc()
				return domain.Unauthorized(msgNotLoggedIn)
			}

			user, err := auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					metrics.AuthRejectionsTotal.WithLabelValues("invalid_token").Inc()
				}
				return err
			}

			c.Set(userKey, user)
			return next(c)
		}
	}
}

// IsLoggedIn attaches the user when the request carries a valid session and
// otherwise lets the request through anonymously. It never fails.
func IsLoggedIn(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := TokenFromRequest(c); token != "" {
				if user, err := auth.Authenticate(c.Request().Context(), token); err == nil {
					c.Set(userKey, user)
				}
			}
			return next(c)
		}
	}
}

// CurrentUser returns the user attached by Protect or IsLoggedIn.
func CurrentUser(c echo.Context) (*domain.User, bool) {
	user, ok := c.Get(userKey).(*domain.User)
	return user, ok && user != nil
}

// TokenFromRequest extracts the raw session token, header first.
func TokenFromRequest(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
