package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeletedMarker replaces the content of a soft-deleted message.
const DeletedMarker = "[Deleted]"

// Message represents a message sent in a group.
type Message struct {
	ID          int         `db:"id" json:"id"`
	GroupID     int         `db:"group_id" json:"group_id"`
	SenderID    int         `db:"sender_id" json:"sender_id"`
	Content     *string     `db:"content" json:"content"`
	FileURL     *string     `db:"file_url" json:"file_url"`
	FileType    *string     `db:"file_type" json:"file_type"`
	IsDeleted   bool        `db:"is_deleted" json:"is_deleted"`
	EditHistory EditHistory `db:"edit_history" json:"edit_history"`
	CreatedAt   time.Time   `db:"created_at" json:"timestamp"`
}

// Text returns the content or "" for file-only messages.
func (m Message) Text() string { return deref(m.Content) }

// ApplyEdit records the current content in the history and replaces it.
func (m *Message) ApplyEdit(newContent string) {
	m.EditHistory = append(m.EditHistory, m.Text())
	m.Content = &newContent
}

// ApplyDelete records the current content in the history and tombstones the message.
func (m *Message) ApplyDelete() {
	m.EditHistory = append(m.EditHistory, m.Text())
	marker := DeletedMarker
	m.Content = &marker
	m.IsDeleted = true
}

// EditHistory is the ordered list of prior contents, stored as JSON text.
type EditHistory []string

// Value implements driver.Valuer.
func (h EditHistory) Value() (driver.Value, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (h *EditHistory) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("edit history: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*h = nil
		return nil
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("edit history: %w", err)
	}
	*h = entries
	return nil
}

// MarshalJSON always renders a list, never null.
func (h EditHistory) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(h))
}

// HistoryEntry is a message resolved for the history endpoint.
type HistoryEntry struct {
	Message
	Sender PublicProfile `json:"sender"`
}
