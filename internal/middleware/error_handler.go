package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/uwcs/warwickgg/internal/service"
)

// StatusFor maps a service error kind to an HTTP status.
func StatusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindEligibility:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindExternalService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders errors returned by handlers.  Service errors carry
// their user-facing message and code; anything else is logged and
// reported as an opaque 500.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var se *service.Error
		if errors.As(err, &se) {
			status := StatusFor(se.Kind)
			if status >= http.StatusInternalServerError {
				log.Error("request failed",
					slog.String("path", c.Path()),
					slog.String("code", se.Code),
					slog.Any("error", err))
			}
			_ = c.JSON(status, echo.Map{"error": se.Msg, "code": se.Code})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, ok := he.Message.(string)
			if !ok {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, echo.Map{"error": msg})
			return
		}

		log.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
