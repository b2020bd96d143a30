package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"school-chat/internal/models"
)

// NewGroup carries the fields accepted when creating a group.
type NewGroup struct {
	Name          string
	Level         *string
	Department    *string
	CreatedBy     int
	IsClassGroup  bool
	IsCustomGroup bool
	StudentIDs    []int
	TeacherIDs    []int
}

// GroupRepository abstracts group and explicit membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, in NewGroup) (models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	ListGroupsForViewer(ctx context.Context, userID int, kind models.ParticipantKind, level string) ([]models.Group, error)
	AddMembers(ctx context.Context, groupID int, studentIDs, teacherIDs []int) error
	RemoveMember(ctx context.Context, groupID int, userID int) error
	IsMember(ctx context.Context, groupID int, userID int, kind models.ParticipantKind) (bool, error)
	MemberIDs(ctx context.Context, groupID int) ([]int, error)
	SetMutedUntil(ctx context.Context, groupID int, until *time.Time) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `g.id, g.name, g.level, g.department, g.created_by, g.created_at, g.is_class_group, g.is_custom_group, g.muted_until`

// CreateGroup creates a group and its membership rows atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, in NewGroup) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO chat_groups AS g (name, level, department, created_by, is_class_group, is_custom_group)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+groupColumns,
		in.Name, in.Level, in.Department, in.CreatedBy, in.IsClassGroup, in.IsCustomGroup).StructScan(&group); err != nil {
		return models.Group{}, err
	}

	if err = insertMembers(ctx, tx, group.ID, in.StudentIDs, in.TeacherIDs); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, groupID int, studentIDs, teacherIDs []int) error {
	for _, id := range dedupe(studentIDs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_students (group_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, id); err != nil {
			return fmt.Errorf("insert student %d: %w", id, err)
		}
	}
	for _, id := range dedupe(teacherIDs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_teachers (group_id, teacher_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, id); err != nil {
			return fmt.Errorf("insert teacher %d: %w", id, err)
		}
	}
	return nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM chat_groups g WHERE g.id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroups returns every group.
func (r *GroupRepo) ListGroups(ctx context.Context) ([]models.Group, error) {
	groups := []models.Group{}
	err := r.db.SelectContext(ctx, &groups, `SELECT `+groupColumns+` FROM chat_groups g ORDER BY g.created_at DESC`)
	return groups, err
}

// ListGroupsForViewer returns groups with an explicit membership row for the user,
// plus class groups whose level matches.
func (r *GroupRepo) ListGroupsForViewer(ctx context.Context, userID int, kind models.ParticipantKind, level string) ([]models.Group, error) {
	table, column := membershipTable(kind)
	query := `SELECT ` + groupColumns + ` FROM chat_groups g
        WHERE g.id IN (SELECT group_id FROM ` + table + ` WHERE ` + column + `=$1)
        OR (g.is_class_group = TRUE AND $2 <> '' AND g.level = $2)
        ORDER BY g.created_at DESC`
	groups := []models.Group{}
	err := r.db.SelectContext(ctx, &groups, query, userID, level)
	return groups, err
}

// AddMembers inserts membership rows, skipping existing ones.
func (r *GroupRepo) AddMembers(ctx context.Context, groupID int, studentIDs, teacherIDs []int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertMembers(ctx, tx, groupID, studentIDs, teacherIDs); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RemoveMember deletes the user from both membership tables. Absence is not an error.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_students WHERE group_id=$1 AND student_id=$2`, groupID, userID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_teachers WHERE group_id=$1 AND teacher_id=$2`, groupID, userID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsMember checks explicit membership of the given kind.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int, kind models.ParticipantKind) (bool, error) {
	table, column := membershipTable(kind)
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE group_id=$1 AND `+column+`=$2)`, groupID, userID)
	return exists, err
}

// MemberIDs returns explicit student members followed by teacher members.
func (r *GroupRepo) MemberIDs(ctx context.Context, groupID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `SELECT student_id FROM group_students WHERE group_id=$1
        UNION ALL SELECT teacher_id FROM group_teachers WHERE group_id=$1`, groupID)
	return dedupe(ids), err
}

// SetMutedUntil sets or clears the group's mute.
func (r *GroupRepo) SetMutedUntil(ctx context.Context, groupID int, until *time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_groups SET muted_until=$2 WHERE id=$1`, groupID, until)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func membershipTable(kind models.ParticipantKind) (string, string) {
	if kind == models.ParticipantTeacher {
		return "group_teachers", "teacher_id"
	}
	return "group_students", "student_id"
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
