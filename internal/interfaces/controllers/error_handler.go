package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fitlife/fitlife-sync/internal/interfaces/presenters"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler renders every handler error as an error envelope.
func NewHTTPErrorHandler(logg *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			err = fromHTTPError(he)
		}

		status, body := presenters.PresentError(err)
		if status >= http.StatusInternalServerError {
			logg.Error(c.Request().Context(), "request failed", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logg.Error(c.Request().Context(), "failed to write error response", err)
		}
	}
}

func fromHTTPError(he *echo.HTTPError) error {
	msg := fmt.Sprint(he.Message)
	switch he.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	case http.StatusUnauthorized:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	case http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeForbidden, msg)
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, he, msg)
	}
}
