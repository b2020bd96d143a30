package handlers

import (
	"github.com/gin-gonic/gin"

	"school-chat/internal/middleware"
	"school-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := middleware.RequestIDFrom(c); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

func userIDFromContext(c *gin.Context) int {
	if user, ok := middleware.CurrentUser(c); ok {
		return user.ID
	}
	return c.GetInt("userID")
}

// auditRecord fills the request-scoped fields of an audit record.
func auditRecord(c *gin.Context, level, action, text string, groupID, targetUserID int) telemetry.AuditRecord {
	return telemetry.AuditRecord{
		Level:        level,
		Text:         text,
		Action:       action,
		RequestID:    requestIDFromContext(c),
		ActorID:      userIDFromContext(c),
		GroupID:      groupID,
		TargetUserID: targetUserID,
	}
}
