package models

import (
	"strings"
	"time"
)

// GeneralDepartment marks a class group open to every department of its level.
const GeneralDepartment = "general"

// Group represents a chat group.
type Group struct {
	ID            int        `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Level         *string    `db:"level" json:"level,omitempty"`
	Department    *string    `db:"department" json:"department,omitempty"`
	CreatedBy     int        `db:"created_by" json:"created_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	IsClassGroup  bool       `db:"is_class_group" json:"is_class_group"`
	IsCustomGroup bool       `db:"is_custom_group" json:"is_custom_group"`
	MutedUntil    *time.Time `db:"muted_until" json:"muted_until,omitempty"`
}

// LevelTag returns the group's level or "" when unset.
func (g Group) LevelTag() string {
	if g.Level == nil {
		return ""
	}
	return *g.Level
}

// DepartmentTag returns the group's department or "" when unset.
func (g Group) DepartmentTag() string {
	if g.Department == nil {
		return ""
	}
	return *g.Department
}

// MatchesLevel reports whether a class group is open to callers of the given level.
func (g Group) MatchesLevel(level string) bool {
	return g.IsClassGroup && level != "" && g.LevelTag() == level
}

// FiltersDepartment reports whether class membership is narrowed by department.
func (g Group) FiltersDepartment() bool {
	dept := g.DepartmentTag()
	return dept != "" && !strings.EqualFold(dept, GeneralDepartment)
}

// IsMuted reports whether the group carries a mute that has not expired at now.
func (g Group) IsMuted(now time.Time) bool {
	return g.MutedUntil != nil && now.Before(*g.MutedUntil)
}

// ParticipantKind selects which explicit membership table a user belongs to.
type ParticipantKind string

const (
	ParticipantStudent ParticipantKind = "student"
	ParticipantTeacher ParticipantKind = "teacher"
)

// GroupMember is a roster entry annotated with its block state.
type GroupMember struct {
	ID           int     `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	StudentClass *string `json:"student_class"`
	Level        *string `json:"level"`
	IsBlocked    bool    `json:"is_blocked"`
}
