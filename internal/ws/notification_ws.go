package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"school-chat/internal/auth"
)

// NotificationServer runs sessions on the global notification channel.
type NotificationServer struct {
	auth         Authenticator
	registry     *NotificationRegistry
	events       *Lifecycle
	logger       *zap.Logger
	keepalive    time.Duration
	writeTimeout time.Duration
}

func NewNotificationServer(authenticator Authenticator, registry *NotificationRegistry, events *Lifecycle, logger *zap.Logger, keepalive, writeTimeout time.Duration) *NotificationServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keepalive <= 0 {
		keepalive = 60 * time.Second
	}
	return &NotificationServer{
		auth:         authenticator,
		registry:     registry,
		events:       events,
		logger:       logger,
		keepalive:    keepalive,
		writeTimeout: writeTimeout,
	}
}

// Handle upgrades and serves a notification connection.
func (s *NotificationServer) Handle(c *gin.Context) {
	token := tokenFromRequest(c.Request)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.Serve(c.Request.Context(), conn, token, newConnInfo(c))
}

// Serve authenticates, registers, and then only pushes. Inbound frames are read
// and discarded so that closes are observed.
func (s *NotificationServer) Serve(ctx context.Context, conn *websocket.Conn, token string, info ConnInfo) SessionState {
	client := NewClient(conn, info, s.writeTimeout)
	logger := s.logger.With(zap.String("conn_id", info.ConnID))

	user, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		code, reason := websocket.ClosePolicyViolation, "invalid token"
		if token == "" {
			reason = "missing token"
		} else if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrMissingToken) {
			logger.Error("authenticate failed", zap.Error(err))
			code, reason = websocket.CloseInternalServerErr, "internal error"
		}
		_ = client.CloseWith(code, reason)
		s.events.Rejected(ctx, kindNotification, 0, client.Info(), reason)
		return StateRejected
	}
	client.info.UserID = user.ID

	s.registry.Connect(client)
	s.events.Connected(ctx, kindNotification, 0, client.Info())
	logger.Info("notification connection active", zap.Int("user_id", user.ID))

	stop := make(chan struct{})
	go s.keepAlive(client, stop, logger)

	var reason string
	for {
		if _, err := client.Read(); err != nil {
			reason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.events.Errored(ctx, kindNotification, 0, client.Info(), reason)
			}
			break
		}
	}
	close(stop)

	s.registry.Disconnect(client)
	_ = client.Close()
	s.events.Disconnected(ctx, kindNotification, 0, client.Info(), reason)
	return StateClosed
}

// keepAlive pings on each tick; a failed ping closes the connection, which ends the read loop.
func (s *NotificationServer) keepAlive(client *Client, stop <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				logger.Debug("keep-alive failed", zap.Error(err))
				_ = client.Close()
				return
			}
		}
	}
}
