// Package memory implements the repository interfaces on process-local maps.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"school-chat/internal/models"
	"school-chat/internal/repositories"
)

type membershipKey struct {
	groupID int
	userID  int
}

// DB holds every table behind one lock.
type DB struct {
	mu sync.RWMutex

	groups   map[int]*models.Group
	messages map[int]*models.Message
	users    map[int]*models.User
	profiles map[int]*models.TeacherProfile

	students map[membershipKey]struct{}
	teachers map[membershipKey]struct{}
	blocked  map[membershipKey]struct{}

	groupSeq   int
	messageSeq int
	now        func() time.Time
}

// Open returns an empty store.
func Open() *DB {
	return &DB{
		groups:   make(map[int]*models.Group),
		messages: make(map[int]*models.Message),
		users:    make(map[int]*models.User),
		profiles: make(map[int]*models.TeacherProfile),
		students: make(map[membershipKey]struct{}),
		teachers: make(map[membershipKey]struct{}),
		blocked:  make(map[membershipKey]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutUser inserts or replaces a user record.
func (db *DB) PutUser(u models.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = &u
}

// PutTeacherProfile inserts or replaces a teacher profile.
func (db *DB) PutTeacherProfile(p models.TeacherProfile) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.profiles[p.UserID] = &p
}

// BlockCount returns the number of block entries for a group.
func (db *DB) BlockCount(groupID int) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for k := range db.blocked {
		if k.groupID == groupID {
			n++
		}
	}
	return n
}

// Groups returns a GroupRepository view of the store.
func (db *DB) Groups() repositories.GroupRepository { return groupRepo{db} }

// Blocks returns a BlockRepository view of the store.
func (db *DB) Blocks() repositories.BlockRepository { return blockRepo{db} }

// Messages returns a MessageRepository view of the store.
func (db *DB) Messages() repositories.MessageRepository { return messageRepo{db} }

// Users returns a UserRepository view of the store.
func (db *DB) Users() repositories.UserRepository { return userRepo{db} }

type groupRepo struct{ db *DB }

func (r groupRepo) CreateGroup(_ context.Context, in repositories.NewGroup) (models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.groupSeq++
	g := models.Group{
		ID:            r.db.groupSeq,
		Name:          in.Name,
		Level:         in.Level,
		Department:    in.Department,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     r.db.now(),
		IsClassGroup:  in.IsClassGroup,
		IsCustomGroup: in.IsCustomGroup,
	}
	r.db.groups[g.ID] = &g
	r.db.addMembersLocked(g.ID, in.StudentIDs, in.TeacherIDs)
	return g, nil
}

// CreateGroupWithID stores a group under a fixed id; used to seed fixtures.
func (db *DB) CreateGroupWithID(g models.Group) models.Group {
	db.mu.Lock()
	defer db.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = db.now()
	}
	db.groups[g.ID] = &g
	if g.ID > db.groupSeq {
		db.groupSeq = g.ID
	}
	return g
}

func (db *DB) addMembersLocked(groupID int, studentIDs, teacherIDs []int) {
	for _, id := range studentIDs {
		db.students[membershipKey{groupID, id}] = struct{}{}
	}
	for _, id := range teacherIDs {
		db.teachers[membershipKey{groupID, id}] = struct{}{}
	}
}

func (r groupRepo) GetGroup(_ context.Context, groupID int) (models.Group, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	g, ok := r.db.groups[groupID]
	if !ok {
		return models.Group{}, repositories.ErrGroupNotFound
	}
	return *g, nil
}

func (r groupRepo) ListGroups(_ context.Context) ([]models.Group, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.sortedGroupsLocked(func(models.Group) bool { return true }), nil
}

func (r groupRepo) ListGroupsForViewer(_ context.Context, userID int, kind models.ParticipantKind, level string) ([]models.Group, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	table := r.db.tableLocked(kind)
	return r.db.sortedGroupsLocked(func(g models.Group) bool {
		if _, ok := table[membershipKey{g.ID, userID}]; ok {
			return true
		}
		return g.MatchesLevel(level)
	}), nil
}

func (db *DB) sortedGroupsLocked(keep func(models.Group) bool) []models.Group {
	out := []models.Group{}
	for _, g := range db.groups {
		if keep(*g) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (db *DB) tableLocked(kind models.ParticipantKind) map[membershipKey]struct{} {
	if kind == models.ParticipantTeacher {
		return db.teachers
	}
	return db.students
}

func (r groupRepo) AddMembers(_ context.Context, groupID int, studentIDs, teacherIDs []int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.addMembersLocked(groupID, studentIDs, teacherIDs)
	return nil
}

func (r groupRepo) RemoveMember(_ context.Context, groupID int, userID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.students, membershipKey{groupID, userID})
	delete(r.db.teachers, membershipKey{groupID, userID})
	return nil
}

func (r groupRepo) IsMember(_ context.Context, groupID int, userID int, kind models.ParticipantKind) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	_, ok := r.db.tableLocked(kind)[membershipKey{groupID, userID}]
	return ok, nil
}

func (r groupRepo) MemberIDs(_ context.Context, groupID int) ([]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var students, teachers []int
	for k := range r.db.students {
		if k.groupID == groupID {
			students = append(students, k.userID)
		}
	}
	for k := range r.db.teachers {
		if k.groupID == groupID {
			teachers = append(teachers, k.userID)
		}
	}
	sort.Ints(students)
	sort.Ints(teachers)

	seen := map[int]struct{}{}
	out := []int{}
	for _, id := range append(students, teachers...) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

func (r groupRepo) SetMutedUntil(_ context.Context, groupID int, until *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g, ok := r.db.groups[groupID]
	if !ok {
		return repositories.ErrGroupNotFound
	}
	g.MutedUntil = until
	return nil
}

type blockRepo struct{ db *DB }

func (r blockRepo) Block(_ context.Context, groupID int, userID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := membershipKey{groupID, userID}
	if _, ok := r.db.blocked[key]; ok {
		return repositories.ErrAlreadyBlocked
	}
	r.db.blocked[key] = struct{}{}
	return nil
}

func (r blockRepo) Unblock(_ context.Context, groupID int, userID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.blocked, membershipKey{groupID, userID})
	return nil
}

func (r blockRepo) IsBlocked(_ context.Context, groupID int, userID int) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	_, ok := r.db.blocked[membershipKey{groupID, userID}]
	return ok, nil
}

func (r blockRepo) BlockedUserIDs(_ context.Context, groupID int) ([]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	ids := []int{}
	for k := range r.db.blocked {
		if k.groupID == groupID {
			ids = append(ids, k.userID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

type messageRepo struct{ db *DB }

func (r messageRepo) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.messageSeq++
	msg.ID = r.db.messageSeq
	msg.CreatedAt = r.db.now()
	stored := cloneMessage(msg)
	r.db.messages[msg.ID] = &stored
	return cloneMessage(msg), nil
}

func (r messageRepo) GetMessage(_ context.Context, messageID int) (models.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	msg, ok := r.db.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return cloneMessage(*msg), nil
}

func (r messageRepo) MutateMessage(_ context.Context, messageID int, fn func(*models.Message) error) (models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	working := cloneMessage(*stored)
	if err := fn(&working); err != nil {
		return models.Message{}, err
	}
	stored.Content = working.Content
	stored.IsDeleted = working.IsDeleted
	stored.EditHistory = append(models.EditHistory(nil), working.EditHistory...)
	return cloneMessage(*stored), nil
}

func (r messageRepo) ListGroupMessages(_ context.Context, groupID int) ([]models.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []models.Message{}
	for _, m := range r.db.messages {
		if m.GroupID == groupID {
			out = append(out, cloneMessage(*m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneMessage(m models.Message) models.Message {
	m.Content = cloneString(m.Content)
	m.FileURL = cloneString(m.FileURL)
	m.FileType = cloneString(m.FileType)
	if m.EditHistory != nil {
		m.EditHistory = append(models.EditHistory(nil), m.EditHistory...)
	}
	return m
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

type userRepo struct{ db *DB }

func (r userRepo) GetUser(_ context.Context, userID int) (models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return *u, nil
}

func (r userRepo) GetUsers(_ context.Context, ids []int) ([]models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []models.User{}
	seen := map[int]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := r.db.users[id]; ok {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r userRepo) GetTeacherProfile(_ context.Context, userID int) (models.TeacherProfile, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.profiles[userID]
	if !ok {
		return models.TeacherProfile{}, repositories.ErrProfileNotFound
	}
	return *p, nil
}

func (r userRepo) ListStudents(_ context.Context, level string, department string) ([]models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []models.User{}
	for _, u := range r.db.users {
		if u.Role != models.RoleStudent || u.Level == nil || *u.Level != level {
			continue
		}
		if department != "" && (u.Department == nil || *u.Department != department) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
