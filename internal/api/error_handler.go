package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/core/domain"
)

const msgSomethingWrong = "Something went wrong!"

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain error kinds to their HTTP status codes.
//   - Shows operational error messages to the client as they are.
//   - Logs unexpected errors and, in production, hides their message.
//   - Renders {"status": "fail"|"error", "message": "..."}; "fail" for 4xx.
func NewHTTPErrorHandler(log zerolog.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := resolveError(err, log, c, production)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context, production bool) (int, errorResponse) {
	// Operational errors raised by the core.
	var de *domain.Error
	if errors.As(err, &de) {
		code := statusFor(de.Kind)
		if code >= http.StatusInternalServerError {
			logUnexpected(log, c, err)
		}
		return code, envelope(code, de.Message, de.Field)
	}

	// Echo's own errors (bind failures, unknown routes, rate limiting).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		if errors.Is(err, echo.ErrNotFound) {
			msg = fmt.Sprintf("Can't find %s on this server!", c.Request().URL.Path)
		}
		if he.Code >= http.StatusInternalServerError {
			logUnexpected(log, c, err)
		}
		return he.Code, envelope(he.Code, msg, "")
	}

	// Bare sentinels.
	if code := statusFor(err); code != http.StatusInternalServerError {
		return code, envelope(code, err.Error(), "")
	}

	logUnexpected(log, c, err)
	if production {
		return http.StatusInternalServerError, envelope(http.StatusInternalServerError, msgSomethingWrong, "")
	}
	return http.StatusInternalServerError, envelope(http.StatusInternalServerError, err.Error(), "")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func envelope(code int, msg, field string) errorResponse {
	status := "error"
	if code >= 400 && code < 500 {
		status = "fail"
	}
	return errorResponse{Status: status, Message: msg, Field: field}
}

func logUnexpected(log zerolog.Logger, c echo.Context, err error) {
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled error")
}
