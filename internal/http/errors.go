package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mood/internal/llm"
	"persona-mood/internal/repository"
	"persona-mood/internal/service"
)

// statusFor traduce errores de servicio a codigos HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, service.ErrPersonaNotInSession):
		return http.StatusBadRequest, "persona not in session"
	case errors.Is(err, service.ErrSessionEnded):
		return http.StatusConflict, "session ended"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "too many turns"
	case errors.Is(err, llm.ErrBackendUnavailable):
		return http.StatusBadGateway, "model backend unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status, public := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Warn(msg, zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": public, "detail": err.Error()})
}
