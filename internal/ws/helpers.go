package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"school-chat/internal/auth"
)

// Close codes beyond RFC 6455.
const (
	CloseForbidden     = 4003
	CloseGroupNotFound = 4004
)

const (
	kindGroup        = "group"
	kindNotification = "notification"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newConnID() string {
	return uuid.NewString()
}

// tokenFromRequest prefers the token query parameter and falls back to a bearer header.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))
	return token
}
