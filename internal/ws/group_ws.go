package ws

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GroupWebSocketHandler handles group websocket connections.
type GroupWebSocketHandler struct {
	server *GroupServer
}

// NewGroupWebSocketHandler constructs a GroupWebSocketHandler.
func NewGroupWebSocketHandler(server *GroupServer) *GroupWebSocketHandler {
	return &GroupWebSocketHandler{server: server}
}

// Handle upgrades first so that credential and access failures can be reported
// with websocket close codes, then runs the session until it ends.
func (h *GroupWebSocketHandler) Handle(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	token := tokenFromRequest(c.Request)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.server.Serve(c.Request.Context(), conn, groupID, token, newConnInfo(c))
}
