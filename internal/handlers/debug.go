package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"school-chat/internal/telemetry"
)

// ConnectionCounter reports live websocket connections.
type ConnectionCounter interface {
	Count() int
}

// RoomCounter reports groups with at least one live connection.
type RoomCounter interface {
	Groups() int
}

// DebugRoutes carries what the debug endpoints inspect. Nil fields are skipped.
type DebugRoutes struct {
	Audit         *telemetry.AuditEmitter
	PublisherMode string
	Rooms         RoomCounter
	Notifications ConnectionCounter
}

// RegisterDebugRoutes mounts /debug endpoints when enabled.
func RegisterDebugRoutes(router gin.IRoutes, d DebugRoutes, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if d.Audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		d.Audit.Emit(c.Request.Context(), auditRecord(c, "INFO", "debug.audit_test", "audit test", 0, 0))
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"request_id": requestIDFromContext(c),
			"publisher":  d.PublisherMode,
		})
	})

	router.GET("/debug/connections", func(c *gin.Context) {
		out := gin.H{"publisher": d.PublisherMode}
		if d.Rooms != nil {
			out["group_rooms"] = d.Rooms.Groups()
		}
		if d.Notifications != nil {
			out["notification_peers"] = d.Notifications.Count()
		}
		c.JSON(http.StatusOK, out)
	})
}
