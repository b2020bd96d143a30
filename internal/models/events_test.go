package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want InboundEvent
	}{
		{"message", `{"type":"message","content":"hello"}`, MessageEvent{Content: "hello"}},
		{"file", `{"type":"file","file_url":"/static/x.pdf","file_type":"document"}`, FileEvent{FileURL: "/static/x.pdf", FileType: "document"}},
		{"edit", `{"type":"edit","message_id":7,"new_content":"revised"}`, EditEvent{MessageID: 7, NewContent: "revised"}},
		{"delete", `{"type":"delete","message_id":7}`, DeleteEvent{MessageID: 7}},
		{"typing", `{"type":"typing"}`, TypingEvent{}},
		{"presence", `{"type":"presence"}`, PresenceEvent{}},
		{"unknown", `{"type":"poll"}`, UnknownEvent{Type: "poll"}},
		{"missing type", `{"content":"x"}`, UnknownEvent{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeInbound([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, ev)
		})
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":`))
	require.Error(t, err)

	_, err = DecodeInbound([]byte(`{"type":"edit","message_id":"seven"}`))
	require.Error(t, err)
}

func TestNotificationFrames(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	long := strings.Repeat("é", 80)
	msg := Message{ID: 1, GroupID: 42, Content: &long}

	n := NewMessageNotification(msg, "Ada", at)
	require.Equal(t, KindNotification, n.Type)
	require.Equal(t, NotificationNewMessage, n.Event)
	require.Equal(t, 42, n.GroupID)
	require.Equal(t, PreviewLength, len([]rune(n.MessagePreview)))

	url, kind := "/static/a.mp3", "audio"
	file := NewFileNotification(Message{GroupID: 42, FileURL: &url, FileType: &kind}, "Ada", at)
	raw, err := json.Marshal(file)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"notification","event":"new_file","group_id":42,"sender":"Ada","file_type":"audio","file_url":"/static/a.mp3","timestamp":"2024-01-02T03:04:05Z"}`, string(raw))
}

func TestPresenceFrameJSON(t *testing.T) {
	raw, err := json.Marshal(NewPresenceFrame(PublicProfile{ID: 3, FullName: "Bo"}, false))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"presence","user_id":3,"full_name":"Bo","online":false}`, string(raw))
}
