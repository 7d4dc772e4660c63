package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/cmd/video-api/service"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/logger"
)

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure
type ErrorDetail struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
	Stage   service.Stage  `json:"stage,omitempty"`
}

// NewErrorDetail converts err into its user-visible form
func NewErrorDetail(err error) ErrorDetail {
	detail := ErrorDetail{
		Kind:    apperrors.KindOf(err),
		Message: apperrors.MessageOf(err),
	}
	var stageErr *service.StageError
	if errors.As(err, &stageErr) {
		detail.Stage = stageErr.Stage
	}
	return detail
}

// HTTPErrorHandler renders errors as {"error": {kind, message, stage}}
func HTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			detail ErrorDetail
		)

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
			detail = ErrorDetail{Kind: kindForStatus(status), Message: http.StatusText(status)}
			if msg, ok := httpErr.Message.(string); ok && msg != "" {
				detail.Message = msg
			}
		} else {
			detail = NewErrorDetail(err)
			status = apperrors.HTTPStatus(detail.Kind)
		}

		if status >= http.StatusInternalServerError {
			log.WithContext(c.Request().Context()).Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, ErrorBody{Error: detail})
		}
		if writeErr != nil {
			log.Warn("failed to write error response", "error", writeErr)
		}
	}
}

func kindForStatus(status int) apperrors.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperrors.KindInvalidArgument
	case http.StatusUnauthorized:
		return apperrors.KindUnauthenticated
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperrors.KindNotFound
	case http.StatusTooManyRequests:
		return apperrors.KindRateLimited
	default:
		return apperrors.KindInternal
	}
}
