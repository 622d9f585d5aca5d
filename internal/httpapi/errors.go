package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"routine-planner/internal/model"
)

// newHTTPErrorHandler maps domain errors onto status codes. Anything it does not
// recognize is a server error and gets logged.
func newHTTPErrorHandler(log *slog.Logger, v *requestValidator) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, body := errorResponse(err, v)
		if code >= http.StatusInternalServerError {
			attrs := []any{"method", c.Request().Method, "uri", c.Request().RequestURI, "err", err}
			if actor, ok := c.Get(contextActorKey).(model.Actor); ok {
				attrs = append(attrs, "actor_id", actor.ID)
			}
			log.Error("request failed", attrs...)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			log.Warn("write error response", "err", err)
		}
	}
}

func errorResponse(err error, v *requestValidator) (int, echo.Map) {
	var (
		httpErr    *echo.HTTPError
		bindErr    *echo.BindingError
		fieldErrs  validator.ValidationErrors
		invalid    *model.InvalidRuleError
		notFound   *model.NotFoundError
		transition *model.InvalidTransitionError
		forbidden  *model.ForbiddenError
		transient  *model.TransientStoreError
	)
	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": v.fieldErrors(fieldErrs)}
	case errors.As(err, &invalid):
		return http.StatusBadRequest, echo.Map{"error": invalid.Error(), "field": invalid.Field}
	case errors.As(err, &notFound):
		return http.StatusNotFound, echo.Map{"error": notFound.Error()}
	case errors.As(err, &transition):
		return http.StatusConflict, echo.Map{"error": transition.Error()}
	case errors.As(err, &forbidden):
		return http.StatusForbidden, echo.Map{"error": forbidden.Error()}
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable, echo.Map{"error": "storage temporarily unavailable", "retryable": true}
	case errors.As(err, &bindErr):
		return http.StatusBadRequest, echo.Map{"error": "invalid value for " + bindErr.Field, "field": bindErr.Field}
	case errors.As(err, &httpErr):
		if inner, ok := httpErr.Internal.(*echo.HTTPError); ok {
			httpErr = inner
		}
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, echo.Map{"error": msg}
	default:
		return http.StatusInternalServerError, echo.Map{"error": http.StatusText(http.StatusInternalServerError)}
	}
}
