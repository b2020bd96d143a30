package ws

import (
	"time"

	"github.com/gin-gonic/gin"

	"school-chat/internal/middleware"
	"school-chat/internal/observability"
)

// ConnInfo is the metadata attached to lifecycle events for one connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnInfo prefers the id assigned by middleware.RequestID over the raw header.
func newConnInfo(c *gin.Context) ConnInfo {
	requestID := middleware.RequestIDFrom(c)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	return ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		ConnectedAt: time.Now(),
	}
}
