package ws

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"school-chat/internal/auth"
	"school-chat/internal/membership"
	"school-chat/internal/messaging"
	"school-chat/internal/models"
	"school-chat/internal/repositories/memory"
)

const testSecret = "session-secret"

type harness struct {
	db     *memory.DB
	groups *GroupRegistry
	notes  *NotificationRegistry
	srv    *httptest.Server
	issuer *auth.Issuer
}

func newHarness(t *testing.T, keepalive time.Duration) *harness {
	t.Helper()
	db := memory.Open()
	groups := NewGroupRegistry(nil)
	notes := NewNotificationRegistry(nil)
	authn := auth.NewAuthenticator(auth.NewValidator(testSecret), db.Users())
	events := NewLifecycle(nil, nil)

	gs := NewGroupServer(GroupServerDeps{
		Auth:          authn,
		Access:        membership.NewResolver(db.Groups(), db.Blocks(), db.Users()),
		Messages:      messaging.NewService(db.Messages(), messaging.UserProfiles{Users: db.Users()}),
		Groups:        groups,
		Notifications: notes,
		Lifecycle:     events,
		WriteTimeout:  time.Second,
	})
	ns := NewNotificationServer(authn, notes, events, nil, keepalive, time.Second)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/chat/ws/groups/:group_id", NewGroupWebSocketHandler(gs).Handle)
	r.GET("/chat/ws/notifications", ns.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{db: db, groups: groups, notes: notes, srv: srv, issuer: auth.NewIssuer(testSecret)}
}

func strptr(s string) *string { return &s }

func (h *harness) student(id int, name, level string) models.User {
	u := models.User{ID: id, Username: strings.ToLower(name), FullName: strptr(name), Role: models.RoleStudent, Level: strptr(level)}
	h.db.PutUser(u)
	return u
}

func (h *harness) token(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := h.issuer.Issue(u, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + path
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// join dials the group and waits until the registry holds want connections.
func (h *harness) join(t *testing.T, groupID int, u models.User, want int) *websocket.Conn {
	t.Helper()
	conn := h.dial(t, "/chat/ws/groups/"+strconv.Itoa(groupID), h.token(t, u))
	require.Eventually(t, func() bool { return h.groups.Count(groupID) == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func TestMessageFansOutToGroupAndNotifications(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 42, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	u1 := h.student(1, "Ada", "JSS1")
	u2 := h.student(2, "Bola", "JSS1")
	u3 := h.student(3, "Chi", "JSS1")

	a := h.join(t, 42, u1, 1)
	b := h.join(t, 42, u2, 2)
	c := h.join(t, 42, u3, 3)
	n := h.dial(t, "/chat/ws/notifications", h.token(t, u3))
	require.Eventually(t, func() bool { return h.notes.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, a, `{"type":"message","content":"hello"}`)

	for _, conn := range []*websocket.Conn{b, c} {
		frame := readFrame(t, conn)
		require.Equal(t, "message", frame["type"])
		require.Equal(t, "hello", frame["content"])
		require.NotZero(t, frame["message_id"])
		require.Equal(t, map[string]any{"id": float64(1), "full_name": "Ada"}, frame["sender"])
	}

	note := readFrame(t, n)
	require.Equal(t, "notification", note["type"])
	require.Equal(t, "new_message", note["event"])
	require.Equal(t, float64(42), note["group_id"])
	require.Equal(t, "Ada", note["sender"])
	require.Equal(t, "hello", note["message_preview"])

	msgs, err := h.db.Messages().ListGroupMessages(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, 1, msgs[0].SenderID)
	require.Equal(t, "hello", msgs[0].Text())
}

func TestFileFrameBroadcastsAndNotifies(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 5, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	u1 := h.student(1, "Ada", "JSS1")
	u2 := h.student(2, "Bola", "JSS1")

	a := h.join(t, 5, u1, 1)
	b := h.join(t, 5, u2, 2)
	n := h.dial(t, "/chat/ws/notifications", h.token(t, u2))
	require.Eventually(t, func() bool { return h.notes.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, a, `{"type":"file","file_url":"/static/x.png","file_type":"image"}`)

	frame := readFrame(t, b)
	require.Equal(t, "file", frame["type"])
	require.Equal(t, "/static/x.png", frame["file_url"])
	require.Equal(t, "image", frame["file_type"])

	note := readFrame(t, n)
	require.Equal(t, "new_file", note["event"])
	require.Equal(t, "image", note["file_type"])
	require.NotContains(t, note, "message_preview")
}

func TestEditAndDeleteOverSocket(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 42, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	u1 := h.student(1, "Ada", "JSS1")
	u2 := h.student(2, "Bola", "JSS1")
	a := h.join(t, 42, u1, 1)
	b := h.join(t, 42, u2, 2)

	send(t, a, `{"type":"message","content":"original"}`)
	id := int(readFrame(t, b)["message_id"].(float64))

	send(t, b, `{"type":"edit","message_id":`+strconv.Itoa(id)+`,"new_content":"revised"}`)
	edit := readFrame(t, a)
	for edit["type"] != "edit" {
		edit = readFrame(t, a)
	}
	require.Equal(t, "revised", edit["new_content"])
	require.Equal(t, map[string]any{"id": float64(2), "full_name": "Bola"}, edit["editor"])

	stored, err := h.db.Messages().GetMessage(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "revised", stored.Text())
	require.Equal(t, models.EditHistory{"original"}, stored.EditHistory)

	// any member may delete over the socket
	send(t, b, `{"type":"delete","message_id":`+strconv.Itoa(id)+`}`)
	del := readFrame(t, a)
	require.Equal(t, "delete", del["type"])
	require.Equal(t, float64(id), del["message_id"])

	stored, err = h.db.Messages().GetMessage(context.Background(), id)
	require.NoError(t, err)
	require.True(t, stored.IsDeleted)
	require.Equal(t, models.DeletedMarker, stored.Text())
	require.Equal(t, models.EditHistory{"original", "revised"}, stored.EditHistory)
}

func TestIgnoredFramesKeepSessionActive(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 8, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	u1 := h.student(1, "Ada", "JSS1")
	u2 := h.student(2, "Bola", "JSS1")
	a := h.join(t, 8, u1, 1)
	b := h.join(t, 8, u2, 2)

	send(t, a, `{"type":"bogus"}`)
	send(t, a, `{"content":"no type"}`)
	send(t, a, `{"type":"edit","message_id":999,"new_content":"x"}`)
	send(t, a, `{"type":"delete","message_id":999}`)
	send(t, a, `{"type":"typing"}`)

	frame := readFrame(t, b)
	require.Equal(t, "typing", frame["type"])
	require.Equal(t, float64(1), frame["user_id"])
	require.Equal(t, "Ada", frame["full_name"])
	require.Equal(t, 2, h.groups.Count(8))
}

func TestEmptyContentGetsErrorFrame(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 8, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	a := h.join(t, 8, h.student(1, "Ada", "JSS1"), 1)

	send(t, a, `{"type":"message"}`)
	frame := readFrame(t, a)
	require.Equal(t, "error", frame["type"])

	send(t, a, `{"type":"presence"}`)
	frame = readFrame(t, a)
	require.Equal(t, "presence", frame["type"])
	require.Equal(t, true, frame["online"])

	msgs, _ := h.db.Messages().ListGroupMessages(context.Background(), 8)
	require.Empty(t, msgs)
}

func TestBlockedUserIsRejectedBeforeRegistration(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 42, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	u1 := h.student(1, "Ada", "JSS1")
	u2 := h.student(2, "Bola", "JSS1")
	require.NoError(t, h.db.Blocks().Block(context.Background(), 42, u2.ID))

	a := h.join(t, 42, u1, 1)
	blocked := h.dial(t, "/chat/ws/groups/42", h.token(t, u2))

	frame := readFrame(t, blocked)
	require.Equal(t, "error", frame["type"])
	require.Equal(t, msgBlocked, frame["message"])
	require.Equal(t, CloseForbidden, readClose(t, blocked).Code)

	send(t, a, `{"type":"message","content":"after"}`)
	require.Equal(t, "after", readFrame(t, a)["content"])
	require.Equal(t, 1, h.groups.Count(42))
}

func TestHandshakeRejections(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 42, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	stranger := h.student(4, "Dayo", "JSS3")

	conn := h.dial(t, "/chat/ws/groups/42", "")
	require.Equal(t, websocket.ClosePolicyViolation, readClose(t, conn).Code)

	conn = h.dial(t, "/chat/ws/groups/42", "garbage")
	require.Equal(t, websocket.ClosePolicyViolation, readClose(t, conn).Code)

	expired, _ := h.issuer.Issue(stranger, -time.Minute)
	conn = h.dial(t, "/chat/ws/groups/42", expired)
	require.Equal(t, websocket.ClosePolicyViolation, readClose(t, conn).Code)

	conn = h.dial(t, "/chat/ws/groups/999", h.token(t, stranger))
	require.Equal(t, CloseGroupNotFound, readClose(t, conn).Code)

	conn = h.dial(t, "/chat/ws/groups/42", h.token(t, stranger))
	require.Equal(t, "error", readFrame(t, conn)["type"])
	require.Equal(t, CloseForbidden, readClose(t, conn).Code)

	require.Equal(t, 0, h.groups.Groups())
}

func TestDisconnectBroadcastsPresenceOffline(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 3, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	a := h.join(t, 3, h.student(1, "Ada", "JSS1"), 1)
	b := h.join(t, 3, h.student(2, "Bola", "JSS1"), 2)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	frame := readFrame(t, b)
	require.Equal(t, "presence", frame["type"])
	require.Equal(t, float64(1), frame["user_id"])
	require.Equal(t, false, frame["online"])
	require.Equal(t, 1, h.groups.Count(3))
}

func TestMalformedFrameClosesWithInternalError(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.db.CreateGroupWithID(models.Group{ID: 3, Name: "JSS1", Level: strptr("JSS1"), IsClassGroup: true})
	a := h.join(t, 3, h.student(1, "Ada", "JSS1"), 1)
	b := h.join(t, 3, h.student(2, "Bola", "JSS1"), 2)

	send(t, a, `{not json`)
	require.Equal(t, websocket.CloseInternalServerErr, readClose(t, a).Code)

	frame := readFrame(t, b)
	require.Equal(t, "presence", frame["type"])
	require.Equal(t, false, frame["online"])
	require.Eventually(t, func() bool { return h.groups.Count(3) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationSession(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	u := h.student(1, "Ada", "JSS1")

	conn := h.dial(t, "/chat/ws/notifications", "")
	require.Equal(t, websocket.ClosePolicyViolation, readClose(t, conn).Code)
	require.Equal(t, 0, h.notes.Count())

	conn = h.dial(t, "/chat/ws/notifications", h.token(t, u))
	require.Eventually(t, func() bool { return h.notes.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	var pings atomic.Int32
	conn.SetPingHandler(func(string) error {
		pings.Add(1)
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	// inbound frames are discarded
	send(t, conn, `{"type":"message","content":"ignored"}`)
	require.Eventually(t, func() bool { return pings.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.notes.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
