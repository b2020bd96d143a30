// Package messaging applies the create and mutation rules for group messages.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"school-chat/internal/models"
	"school-chat/internal/repositories"
)

var (
	ErrForbidden    = errors.New("not allowed to delete this message")
	ErrEmptyContent = errors.New("message content is required")
	ErrMissingFile  = errors.New("file_url is required")
)

// Outcome tells callers whether a mutation touched a row.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	// OutcomeNotFoundIgnored is returned when the target message does not exist.
	OutcomeNotFoundIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNotFoundIgnored:
		return "not_found_ignored"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ProfileSource resolves public sender profiles.
type ProfileSource interface {
	PublicProfiles(ctx context.Context, ids []int) (map[int]models.PublicProfile, error)
}

// UserProfiles reads profiles straight from the user store.
type UserProfiles struct {
	Users repositories.UserRepository
}

func (p UserProfiles) PublicProfiles(ctx context.Context, ids []int) (map[int]models.PublicProfile, error) {
	users, err := p.Users.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int]models.PublicProfile, len(users))
	for _, u := range users {
		out[u.ID] = u.Profile()
	}
	return out, nil
}

// Service wraps the message store.
type Service struct {
	messages repositories.MessageRepository
	profiles ProfileSource
}

// NewService constructs a Service.
func NewService(messages repositories.MessageRepository, profiles ProfileSource) *Service {
	return &Service{messages: messages, profiles: profiles}
}

// PostText persists a text message from sender in group.
func (s *Service) PostText(ctx context.Context, groupID, senderID int, content string) (models.Message, error) {
	if content == "" {
		return models.Message{}, ErrEmptyContent
	}
	return s.messages.CreateMessage(ctx, models.Message{GroupID: groupID, SenderID: senderID, Content: &content})
}

// PostFile persists a file message. The file itself was stored by the upload endpoint.
func (s *Service) PostFile(ctx context.Context, groupID, senderID int, fileURL, fileType string) (models.Message, error) {
	if fileURL == "" {
		return models.Message{}, ErrMissingFile
	}
	msg := models.Message{GroupID: groupID, SenderID: senderID, FileURL: &fileURL}
	if fileType != "" {
		msg.FileType = &fileType
	}
	return s.messages.CreateMessage(ctx, msg)
}

// Edit replaces the content of a message, keeping the old text in its history.
// No authorship check is made.
func (s *Service) Edit(ctx context.Context, messageID int, newContent string) (models.Message, Outcome, error) {
	return s.mutate(ctx, messageID, func(m *models.Message) error {
		m.ApplyEdit(newContent)
		return nil
	})
}

// Delete tombstones a message. No authorship check is made; see DeleteAsUser.
func (s *Service) Delete(ctx context.Context, messageID int) (models.Message, Outcome, error) {
	return s.mutate(ctx, messageID, func(m *models.Message) error {
		m.ApplyDelete()
		return nil
	})
}

// DeleteAsUser tombstones a message on behalf of its sender or an admin.
// A missing message is reported as repositories.ErrMessageNotFound. On
// ErrForbidden the returned message carries the id, group and sender only.
func (s *Service) DeleteAsUser(ctx context.Context, messageID int, user models.User) (models.Message, error) {
	var seen models.Message
	msg, err := s.messages.MutateMessage(ctx, messageID, func(m *models.Message) error {
		seen = models.Message{ID: m.ID, GroupID: m.GroupID, SenderID: m.SenderID}
		if m.SenderID != user.ID && !user.IsAdmin() {
			return ErrForbidden
		}
		m.ApplyDelete()
		return nil
	})
	if err != nil {
		return seen, err
	}
	return msg, nil
}

func (s *Service) mutate(ctx context.Context, messageID int, fn func(*models.Message) error) (models.Message, Outcome, error) {
	msg, err := s.messages.MutateMessage(ctx, messageID, fn)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, OutcomeNotFoundIgnored, nil
	}
	if err != nil {
		return models.Message{}, OutcomeApplied, err
	}
	return msg, OutcomeApplied, nil
}

// History returns the group's messages in order, each with its sender's profile.
// Senders that no longer exist resolve to a profile with an empty name.
func (s *Service) History(ctx context.Context, groupID int) ([]models.HistoryEntry, error) {
	msgs, err := s.messages.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]int, 0, len(msgs))
	seen := make(map[int]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	profiles := map[int]models.PublicProfile{}
	if len(ids) > 0 {
		profiles, err = s.profiles.PublicProfiles(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve senders: %w", err)
		}
	}

	out := make([]models.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := profiles[m.SenderID]
		if !ok {
			sender = models.PublicProfile{ID: m.SenderID}
		}
		out = append(out, models.HistoryEntry{Message: m, Sender: sender})
	}
	return out, nil
}
