package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"school-chat/internal/auth"
	"school-chat/internal/membership"
	"school-chat/internal/messaging"
	"school-chat/internal/models"
	"school-chat/internal/observability"
	"school-chat/internal/repositories"
)

// SessionState is the position of a connection in its lifecycle.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateAuthorizing
	StateActive
	StateClosed
	StateRejected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthorizing:
		return "authorizing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	msgBlocked      = "You are blocked from this group chat."
	msgNotPermitted = "You are not allowed to access this group chat."
	msgEmptyContent = "Message content is required."
	msgMissingFile  = "file_url is required."
)

// Authenticator resolves a connection token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// Authorizer decides whether a user may join a group.
type Authorizer interface {
	Authorize(ctx context.Context, groupID int, user models.User) (models.Group, error)
}

// MessageService persists inbound message frames.
type MessageService interface {
	PostText(ctx context.Context, groupID, senderID int, content string) (models.Message, error)
	PostFile(ctx context.Context, groupID, senderID int, fileURL, fileType string) (models.Message, error)
	Edit(ctx context.Context, messageID int, newContent string) (models.Message, messaging.Outcome, error)
	Delete(ctx context.Context, messageID int) (models.Message, messaging.Outcome, error)
}

// GroupServerDeps wires a GroupServer.
type GroupServerDeps struct {
	Auth          Authenticator
	Access        Authorizer
	Messages      MessageService
	Groups        *GroupRegistry
	Notifications *NotificationRegistry
	Lifecycle     *Lifecycle
	Logger        *zap.Logger
	WriteTimeout  time.Duration
}

// GroupServer runs group sessions against shared registries and stores.
type GroupServer struct {
	auth          Authenticator
	access        Authorizer
	messages      MessageService
	groups        *GroupRegistry
	notifications *NotificationRegistry
	events        *Lifecycle
	logger        *zap.Logger
	writeTimeout  time.Duration
	now           func() time.Time
	tracer        trace.Tracer
}

func NewGroupServer(d GroupServerDeps) *GroupServer {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupServer{
		auth:          d.Auth,
		access:        d.Access,
		messages:      d.Messages,
		groups:        d.Groups,
		notifications: d.Notifications,
		events:        d.Lifecycle,
		logger:        logger,
		writeTimeout:  d.WriteTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		tracer:        otel.Tracer("school-chat/ws"),
	}
}

type groupSession struct {
	server  *GroupServer
	client  *Client
	groupID int
	user    models.User
	state   SessionState
	logger  *zap.Logger
}

// Serve drives one upgraded connection to a terminal state and returns it.
// It blocks until the connection is closed.
func (s *GroupServer) Serve(ctx context.Context, conn *websocket.Conn, groupID int, token string, info ConnInfo) SessionState {
	hsCtx, span := s.tracer.Start(ctx, "ws.group.handshake", trace.WithAttributes(attribute.Int("chat.group_id", groupID)))
	info.TraceID = observability.TraceIDFromContext(hsCtx)

	sess := &groupSession{
		server:  s,
		client:  NewClient(conn, info, s.writeTimeout),
		groupID: groupID,
		state:   StateConnecting,
		logger:  s.logger.With(zap.Int("group_id", groupID), zap.String("conn_id", info.ConnID)),
	}
	admitted := sess.handshake(hsCtx, token)
	span.SetAttributes(attribute.String("ws.state", sess.state.String()))
	span.End()
	if !admitted {
		return sess.state
	}

	sess.serveActive(ctx)
	return sess.state
}

func (s *groupSession) handshake(ctx context.Context, token string) bool {
	s.state = StateAuthenticating
	if token == "" {
		s.reject(ctx, websocket.ClosePolicyViolation, "missing token", "")
		return false
	}
	user, err := s.server.auth.Authenticate(ctx, token)
	switch {
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		s.reject(ctx, websocket.ClosePolicyViolation, "invalid token", "")
		return false
	case err != nil:
		s.logger.Error("authenticate failed", zap.Error(err))
		s.reject(ctx, websocket.CloseInternalServerErr, "internal error", "")
		return false
	}
	s.user = user
	s.client.info.UserID = user.ID
	s.logger = s.logger.With(zap.Int("user_id", user.ID))

	s.state = StateAuthorizing
	_, err = s.server.access.Authorize(ctx, s.groupID, user)
	switch {
	case err == nil:
		return true
	case errors.Is(err, membership.ErrBlocked):
		s.reject(ctx, CloseForbidden, "blocked", msgBlocked)
	case errors.Is(err, repositories.ErrGroupNotFound):
		s.reject(ctx, CloseGroupNotFound, "group not found", "")
	case errors.Is(err, membership.ErrNotPermitted), errors.Is(err, membership.ErrNoProfile):
		s.reject(ctx, CloseForbidden, "not permitted", msgNotPermitted)
	default:
		s.logger.Error("authorize failed", zap.Error(err))
		s.reject(ctx, websocket.CloseInternalServerErr, "internal error", "")
	}
	return false
}

// reject ends a session that never became active. The optional notice is sent as
// an error frame before the close frame.
func (s *groupSession) reject(ctx context.Context, code int, reason, notice string) {
	s.state = StateRejected
	if notice != "" {
		_ = s.client.SendJSON(models.NewErrorFrame(notice))
	}
	_ = s.client.CloseWith(code, reason)
	s.logger.Info("group connection rejected", zap.Int("close_code", code), zap.String("reason", reason))
	s.server.events.Rejected(ctx, kindGroup, s.groupID, s.client.Info(), reason)
}

func (s *groupSession) serveActive(ctx context.Context) {
	s.state = StateActive
	s.server.groups.Connect(s.groupID, s.client)
	s.server.events.Connected(ctx, kindGroup, s.groupID, s.client.Info())
	s.logger.Info("group connection active")

	closeCode, reason := websocket.CloseNormalClosure, ""
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("group session panic", zap.Any("panic", p))
			closeCode, reason = websocket.CloseInternalServerErr, "internal error"
		}
		s.leave(ctx, closeCode, reason)
	}()
	closeCode, reason = s.readLoop(ctx)
}

// leave runs on every exit from Active.
func (s *groupSession) leave(ctx context.Context, closeCode int, reason string) {
	s.server.groups.Disconnect(s.groupID, s.client)
	s.state = StateClosed
	s.server.groups.Broadcast(s.groupID, models.NewPresenceFrame(s.user.Profile(), false))

	if closeCode == websocket.CloseInternalServerErr {
		_ = s.client.CloseWith(closeCode, "internal error")
	} else {
		_ = s.client.Close()
	}
	s.server.events.Disconnected(ctx, kindGroup, s.groupID, s.client.Info(), reason)
	s.logger.Info("group connection closed", zap.String("reason", reason))
}

func (s *groupSession) readLoop(ctx context.Context) (int, string) {
	for {
		data, err := s.client.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.server.events.Errored(ctx, kindGroup, s.groupID, s.client.Info(), err.Error())
			}
			return websocket.CloseNormalClosure, err.Error()
		}

		ev, err := models.DecodeInbound(data)
		if err != nil {
			observability.IncInboundFrame("unknown", "malformed")
			s.logger.Warn("malformed frame", zap.Error(err))
			s.server.events.Errored(ctx, kindGroup, s.groupID, s.client.Info(), "malformed frame")
			return websocket.CloseInternalServerErr, "malformed frame"
		}
		if err := s.dispatch(ctx, ev); err != nil {
			observability.IncInboundFrame(string(ev.Kind()), "error")
			s.logger.Error("frame processing failed", zap.String("type", string(ev.Kind())), zap.Error(err))
			s.server.events.Errored(ctx, kindGroup, s.groupID, s.client.Info(), "processing error")
			return websocket.CloseInternalServerErr, "processing error"
		}
	}
}

func (s *groupSession) dispatch(ctx context.Context, ev models.InboundEvent) error {
	switch e := ev.(type) {
	case models.MessageEvent:
		return s.onMessage(ctx, e)
	case models.FileEvent:
		return s.onFile(ctx, e)
	case models.EditEvent:
		return s.onEdit(ctx, e)
	case models.DeleteEvent:
		return s.onDelete(ctx, e)
	case models.TypingEvent:
		s.server.groups.Broadcast(s.groupID, models.NewTypingFrame(s.user.Profile()))
	case models.PresenceEvent:
		s.server.groups.Broadcast(s.groupID, models.NewPresenceFrame(s.user.Profile(), true))
	default:
		s.logger.Info("ignoring unknown frame type", zap.String("type", string(ev.Kind())))
		observability.IncInboundFrame("unknown", "ignored")
		return nil
	}
	observability.IncInboundFrame(string(ev.Kind()), "ok")
	return nil
}

func (s *groupSession) onMessage(ctx context.Context, e models.MessageEvent) error {
	msg, err := s.server.messages.PostText(ctx, s.groupID, s.user.ID, e.Content)
	if errors.Is(err, messaging.ErrEmptyContent) {
		return s.invalid(models.KindMessage, msgEmptyContent)
	}
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	observability.IncMessagePersisted("create")
	s.server.groups.Broadcast(s.groupID, models.NewMessageFrame(msg, s.user.Profile()))
	s.server.notifications.Broadcast(models.NewMessageNotification(msg, s.user.DisplayName(), s.server.now()))
	return nil
}

func (s *groupSession) onFile(ctx context.Context, e models.FileEvent) error {
	msg, err := s.server.messages.PostFile(ctx, s.groupID, s.user.ID, e.FileURL, e.FileType)
	if errors.Is(err, messaging.ErrMissingFile) {
		return s.invalid(models.KindFile, msgMissingFile)
	}
	if err != nil {
		return fmt.Errorf("persist file message: %w", err)
	}
	observability.IncMessagePersisted("create")
	s.server.groups.Broadcast(s.groupID, models.NewFileFrame(msg, s.user.Profile()))
	s.server.notifications.Broadcast(models.NewFileNotification(msg, s.user.DisplayName(), s.server.now()))
	return nil
}

// onEdit and onDelete broadcast to the message's own group and make no sender check.
func (s *groupSession) onEdit(ctx context.Context, e models.EditEvent) error {
	msg, outcome, err := s.server.messages.Edit(ctx, e.MessageID, e.NewContent)
	if err != nil {
		return fmt.Errorf("edit message %d: %w", e.MessageID, err)
	}
	if outcome == messaging.OutcomeNotFoundIgnored {
		s.logger.Debug("edit ignored", zap.Int("message_id", e.MessageID), zap.Stringer("outcome", outcome))
		return nil
	}
	observability.IncMessagePersisted("edit")
	s.server.groups.Broadcast(msg.GroupID, models.NewEditFrame(msg, s.user.Profile()))
	return nil
}

func (s *groupSession) onDelete(ctx context.Context, e models.DeleteEvent) error {
	msg, outcome, err := s.server.messages.Delete(ctx, e.MessageID)
	if err != nil {
		return fmt.Errorf("delete message %d: %w", e.MessageID, err)
	}
	if outcome == messaging.OutcomeNotFoundIgnored {
		s.logger.Debug("delete ignored", zap.Int("message_id", e.MessageID), zap.Stringer("outcome", outcome))
		return nil
	}
	observability.IncMessagePersisted("delete")
	s.server.groups.Broadcast(msg.GroupID, models.NewDeleteFrame(msg, s.user.Profile()))
	return nil
}

// invalid tells only the sender that a frame was rejected; the session continues.
func (s *groupSession) invalid(kind models.EventKind, notice string) error {
	observability.IncInboundFrame(string(kind), "invalid")
	if err := s.client.SendJSON(models.NewErrorFrame(notice)); err != nil {
		s.logger.Debug("error frame not delivered", zap.Error(err))
	}
	return nil
}
