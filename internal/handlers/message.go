package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"school-chat/internal/messaging"
	"school-chat/internal/middleware"
	"school-chat/internal/models"
	"school-chat/internal/repositories"
	"school-chat/internal/telemetry"
)

// MessageDeleter tombstones a message on behalf of a user.
type MessageDeleter interface {
	DeleteAsUser(ctx context.Context, messageID int, user models.User) (models.Message, error)
}

// MessageHandler serves message-level REST endpoints.
type MessageHandler struct {
	messages MessageDeleter
	audit    *telemetry.AuditEmitter
	logger   *zap.Logger
}

func NewMessageHandler(messages MessageDeleter, audit *telemetry.AuditEmitter, logger *zap.Logger) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandler{messages: messages, audit: audit, logger: logger}
}

// DeleteMessage tombstones a message for its sender or an admin. Live group
// connections are not notified; clients see the change on their next history fetch.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)

	msg, err := h.messages.DeleteAsUser(c.Request.Context(), messageID, user)
	if err != nil {
		h.audit.Emit(c.Request.Context(), auditRecord(c, "ERROR", "message.delete", deleteFailureText(err), msg.GroupID, msg.SenderID))
		respondError(c, h.logger, err)
		return
	}
	h.audit.Emit(c.Request.Context(), auditRecord(c, "INFO", "message.delete", "Message deleted", msg.GroupID, msg.SenderID))
	c.JSON(http.StatusOK, gin.H{"status": "message deleted", "message_id": msg.ID})
}

func deleteFailureText(err error) string {
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		return "message not found"
	case errors.Is(err, messaging.ErrForbidden):
		return "delete forbidden"
	default:
		return "internal error"
	}
}
