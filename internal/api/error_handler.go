package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/service"
	"github.com/krezhik/marketauth/internal/util"
)

// ErrorHandler maps service errors to responses. Everything in the
// authentication taxonomy presents as 401: the client's only recourse is a
// fresh login, regardless of which check failed.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if isUnauthorizedTokenError(err) {
			c.JSON(http.StatusUnauthorized, map[string]string{"reason": err.Error()})
			return
		}

		var respErr util.ResponseError
		if errors.As(err, &respErr) {
			if err := c.JSON(respErr.Status, map[string]string{"reason": respErr.Msg}); err != nil {
				log.Errorw("failed to write json response", "error", err)
			}
			return
		}

		he, ok := err.(*echo.HTTPError)
		if ok {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			if err := c.JSON(he.Code, map[string]string{"reason": http.StatusText(he.Code)}); err != nil {
				log.Errorw("failed to write json response", "error", err)
			}
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		c.JSON(http.StatusInternalServerError, map[string]string{"reason": "internal server error"})
	}
}

func isUnauthorizedTokenError(err error) bool {
	return errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrTokenInactive) ||
		errors.Is(err, service.ErrSessionInvalid)
}
