package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"school-chat/internal/models"
	"school-chat/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, in repositories.NewGroup) (models.Group, error) {
	args := m.Called(ctx, in)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroups(ctx context.Context) ([]models.Group, error) {
	args := m.Called(ctx)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForViewer(ctx context.Context, userID int, kind models.ParticipantKind, level string) ([]models.Group, error) {
	args := m.Called(ctx, userID, kind, level)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) AddMembers(ctx context.Context, groupID int, studentIDs, teacherIDs []int) error {
	args := m.Called(ctx, groupID, studentIDs, teacherIDs)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID int, userID int) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int, kind models.ParticipantKind) (bool, error) {
	args := m.Called(ctx, groupID, userID, kind)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) MemberIDs(ctx context.Context, groupID int) ([]int, error) {
	args := m.Called(ctx, groupID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) SetMutedUntil(ctx context.Context, groupID int, until *time.Time) error {
	args := m.Called(ctx, groupID, until)
	return args.Error(0)
}

type BlockRepositoryMock struct {
	mock.Mock
}

func (m *BlockRepositoryMock) Block(ctx context.Context, groupID int, userID int) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *BlockRepositoryMock) Unblock(ctx context.Context, groupID int, userID int) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *BlockRepositoryMock) IsBlocked(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *BlockRepositoryMock) BlockedUserIDs(ctx context.Context, groupID int) ([]int, error) {
	args := m.Called(ctx, groupID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

// MutateMessage applies fn to the message given as the first return value, so tests
// can observe the mutation rules without a store.
func (m *MessageRepositoryMock) MutateMessage(ctx context.Context, messageID int, fn func(*models.Message) error) (models.Message, error) {
	args := m.Called(ctx, messageID)
	if err := args.Error(1); err != nil {
		return models.Message{}, err
	}
	msg := args.Get(0).(models.Message)
	if err := fn(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (m *MessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) GetTeacherProfile(ctx context.Context, userID int) (models.TeacherProfile, error) {
	args := m.Called(ctx, userID)
	var p models.TeacherProfile
	if val := args.Get(0); val != nil {
		p = val.(models.TeacherProfile)
	}
	return p, args.Error(1)
}

func (m *UserRepositoryMock) ListStudents(ctx context.Context, level string, department string) ([]models.User, error) {
	args := m.Called(ctx, level, department)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

var (
	_ repositories.GroupRepository   = (*GroupRepositoryMock)(nil)
	_ repositories.BlockRepository   = (*BlockRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
)
