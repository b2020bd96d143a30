package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the "type" discriminator carried by every frame.
type EventKind string

const (
	KindMessage      EventKind = "message"
	KindFile         EventKind = "file"
	KindEdit         EventKind = "edit"
	KindDelete       EventKind = "delete"
	KindTyping       EventKind = "typing"
	KindPresence     EventKind = "presence"
	KindError        EventKind = "error"
	KindNotification EventKind = "notification"
)

const (
	NotificationNewMessage = "new_message"
	NotificationNewFile    = "new_file"
)

// PreviewLength bounds the content excerpt carried by notifications.
const PreviewLength = 50

// InboundEvent is one client frame on a group connection.
type InboundEvent interface {
	Kind() EventKind
}

type MessageEvent struct {
	Content string `json:"content"`
}

type FileEvent struct {
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type"`
}

type EditEvent struct {
	MessageID  int    `json:"message_id"`
	NewContent string `json:"new_content"`
}

type DeleteEvent struct {
	MessageID int `json:"message_id"`
}

type TypingEvent struct{}

type PresenceEvent struct{}

// UnknownEvent carries a discriminator the server does not handle.
type UnknownEvent struct {
	Type string
}

func (MessageEvent) Kind() EventKind  { return KindMessage }
func (FileEvent) Kind() EventKind     { return KindFile }
func (EditEvent) Kind() EventKind     { return KindEdit }
func (DeleteEvent) Kind() EventKind   { return KindDelete }
func (TypingEvent) Kind() EventKind   { return KindTyping }
func (PresenceEvent) Kind() EventKind { return KindPresence }
func (e UnknownEvent) Kind() EventKind {
	return EventKind(e.Type)
}

// DecodeInbound parses a client frame into its variant. A missing or unrecognised
// type yields UnknownEvent; malformed JSON is an error.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var ev InboundEvent
	switch EventKind(head.Type) {
	case KindMessage:
		var e MessageEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode message frame: %w", err)
		}
		ev = e
	case KindFile:
		var e FileEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode file frame: %w", err)
		}
		ev = e
	case KindEdit:
		var e EditEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode edit frame: %w", err)
		}
		ev = e
	case KindDelete:
		var e DeleteEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode delete frame: %w", err)
		}
		ev = e
	case KindTyping:
		ev = TypingEvent{}
	case KindPresence:
		ev = PresenceEvent{}
	default:
		ev = UnknownEvent{Type: head.Type}
	}
	return ev, nil
}

// MessageFrame is broadcast to a group when a text message is posted.
type MessageFrame struct {
	Type      EventKind     `json:"type"`
	MessageID int           `json:"message_id"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Sender    PublicProfile `json:"sender"`
}

// FileFrame is broadcast to a group when a file message is posted.
type FileFrame struct {
	Type      EventKind     `json:"type"`
	MessageID int           `json:"message_id"`
	FileURL   string        `json:"file_url"`
	FileType  string        `json:"file_type"`
	Timestamp time.Time     `json:"timestamp"`
	Sender    PublicProfile `json:"sender"`
}

type EditFrame struct {
	Type       EventKind     `json:"type"`
	MessageID  int           `json:"message_id"`
	NewContent string        `json:"new_content"`
	Editor     PublicProfile `json:"editor"`
}

type DeleteFrame struct {
	Type      EventKind     `json:"type"`
	MessageID int           `json:"message_id"`
	Deleter   PublicProfile `json:"deleter"`
}

type TypingFrame struct {
	Type     EventKind `json:"type"`
	UserID   int       `json:"user_id"`
	FullName string    `json:"full_name"`
}

type PresenceFrame struct {
	Type     EventKind `json:"type"`
	UserID   int       `json:"user_id"`
	FullName string    `json:"full_name"`
	Online   bool      `json:"online"`
}

// ErrorFrame is sent to a single client, typically right before a close.
type ErrorFrame struct {
	Type    EventKind `json:"type"`
	Message string    `json:"message"`
}

// NotificationFrame is the condensed event fanned out on the global channel.
type NotificationFrame struct {
	Type           EventKind `json:"type"`
	Event          string    `json:"event"`
	GroupID        int       `json:"group_id"`
	Sender         string    `json:"sender"`
	MessagePreview string    `json:"message_preview,omitempty"`
	FileType       string    `json:"file_type,omitempty"`
	FileURL        string    `json:"file_url,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewMessageFrame(msg Message, sender PublicProfile) MessageFrame {
	return MessageFrame{Type: KindMessage, MessageID: msg.ID, Content: msg.Text(), Timestamp: msg.CreatedAt, Sender: sender}
}

func NewFileFrame(msg Message, sender PublicProfile) FileFrame {
	return FileFrame{
		Type:      KindFile,
		MessageID: msg.ID,
		FileURL:   deref(msg.FileURL),
		FileType:  deref(msg.FileType),
		Timestamp: msg.CreatedAt,
		Sender:    sender,
	}
}

func NewEditFrame(msg Message, editor PublicProfile) EditFrame {
	return EditFrame{Type: KindEdit, MessageID: msg.ID, NewContent: msg.Text(), Editor: editor}
}

func NewDeleteFrame(msg Message, deleter PublicProfile) DeleteFrame {
	return DeleteFrame{Type: KindDelete, MessageID: msg.ID, Deleter: deleter}
}

func NewTypingFrame(u PublicProfile) TypingFrame {
	return TypingFrame{Type: KindTyping, UserID: u.ID, FullName: u.FullName}
}

func NewPresenceFrame(u PublicProfile, online bool) PresenceFrame {
	return PresenceFrame{Type: KindPresence, UserID: u.ID, FullName: u.FullName, Online: online}
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: KindError, Message: message}
}

// NewMessageNotification summarises a text message for the global channel.
func NewMessageNotification(msg Message, sender string, at time.Time) NotificationFrame {
	return NotificationFrame{
		Type:           KindNotification,
		Event:          NotificationNewMessage,
		GroupID:        msg.GroupID,
		Sender:         sender,
		MessagePreview: Preview(msg.Text()),
		Timestamp:      at,
	}
}

// NewFileNotification summarises a file message for the global channel.
func NewFileNotification(msg Message, sender string, at time.Time) NotificationFrame {
	return NotificationFrame{
		Type:      KindNotification,
		Event:     NotificationNewFile,
		GroupID:   msg.GroupID,
		Sender:    sender,
		FileType:  deref(msg.FileType),
		FileURL:   deref(msg.FileURL),
		Timestamp: at,
	}
}

// Preview truncates content to PreviewLength characters.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}
