package middleware

import (
	"errors"
	"net/http"

	"support-chat/internal/transport/httpdto"
	chat_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler turns errors attached to the gin context into the JSON error
// envelope. Handlers that already wrote a typed response do not attach errors
// here, so this is the fallback for anything that slipped through.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.Errorf("request error: %s", err.Error())
		}

		status, code := classifyError(err, c.Writer.Status())
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}

func classifyError(err error, written int) (int, string) {
	var authErr *chat_errors.AuthError
	switch {
	case chat_errors.IsPermission(err):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.As(err, &authErr), errors.Is(err, chat_errors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, chat_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, chat_errors.ErrInvalidInput),
		errors.Is(err, chat_errors.ErrEmptyContent),
		errors.Is(err, chat_errors.ErrInvalidTransition):
		return http.StatusBadRequest, "INVALID_INPUT"
	}
	if written >= http.StatusBadRequest {
		return written, "INTERNAL_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
