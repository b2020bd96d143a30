package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"school-chat/internal/membership"
	"school-chat/internal/messaging"
	"school-chat/internal/repositories"
	"school-chat/internal/storage"
)

// statusFor maps domain errors onto HTTP statuses and the message shown to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repositories.ErrGroupNotFound):
		return http.StatusNotFound, "group not found"
	case errors.Is(err, repositories.ErrMessageNotFound):
		return http.StatusNotFound, "message not found"
	case errors.Is(err, repositories.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, repositories.ErrAlreadyBlocked):
		return http.StatusConflict, repositories.ErrAlreadyBlocked.Error()
	case errors.Is(err, membership.ErrBlocked):
		return http.StatusForbidden, "you are blocked from this group"
	case errors.Is(err, membership.ErrNotPermitted), errors.Is(err, membership.ErrNoProfile):
		return http.StatusForbidden, "not allowed to access this group"
	case errors.Is(err, messaging.ErrForbidden):
		return http.StatusForbidden, messaging.ErrForbidden.Error()
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, storage.ErrTooLarge.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
