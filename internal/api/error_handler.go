package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/controller"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/service"
	"github.com/rryowa/sessiongate/internal/util"
)

// ErrorHandler writes every error as a failed envelope.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := resolve(err)
		if status >= http.StatusInternalServerError {
			log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		}

		if err := c.JSON(status, models.Envelope{Success: false, Message: message}); err != nil {
			log.Errorw("failed to write json response", "error", err)
		}
	}
}

func resolve(err error) (int, string) {
	if isUnauthorizedTokenError(err) {
		return http.StatusUnauthorized, unauthorizedMessage(err)
	}

	var respErr util.MyResponseError
	if errors.As(err, &respErr) {
		return controller.InternalError(err)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, fmt.Sprint(he.Message)
	}

	return http.StatusInternalServerError, "internal server error"
}

func isUnauthorizedTokenError(err error) bool {
	return errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrTokenMalformed) ||
		errors.Is(err, service.ErrRefreshTokenNotFoundOrUsed)
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "Token has expired"
	case errors.Is(err, service.ErrRefreshTokenNotFoundOrUsed):
		return "Invalid refresh token"
	default:
		return "Invalid token"
	}
}
