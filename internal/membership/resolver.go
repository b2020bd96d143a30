// Package membership decides who belongs to a group and who may see it.
//
// Class groups never store rosters: their members are computed from the users'
// level (and department) at query time. Custom groups list members explicitly.
// Both kinds are expressed as a Resolution so callers are written once.
package membership

import (
	"context"
	"errors"
	"fmt"

	"school-chat/internal/models"
	"school-chat/internal/repositories"
)

var (
	ErrBlocked      = errors.New("blocked from this group")
	ErrNotPermitted = errors.New("not allowed to access this group")
	ErrNoProfile    = errors.New("teacher profile not found")
)

// Resolution is how a group's roster is determined.
type Resolution interface {
	resolution()
}

// Computed derives members from level and, unless empty, department.
type Computed struct {
	Level      string
	Department string
}

// Explicit reads members from the group's membership rows.
type Explicit struct {
	GroupID int
}

func (Computed) resolution() {}
func (Explicit) resolution() {}

// ResolutionFor maps a group to its resolution.
func ResolutionFor(g models.Group) Resolution {
	if g.IsClassGroup {
		c := Computed{Level: g.LevelTag()}
		if g.FiltersDepartment() {
			c.Department = g.DepartmentTag()
		}
		return c
	}
	return Explicit{GroupID: g.ID}
}

// Viewer is a caller with the profile attributes visibility depends on.
type Viewer struct {
	User  models.User
	Kind  models.ParticipantKind
	Level string
}

// Resolver answers membership and visibility questions against the stores.
type Resolver struct {
	groups repositories.GroupRepository
	blocks repositories.BlockRepository
	users  repositories.UserRepository
}

// NewResolver constructs a Resolver.
func NewResolver(groups repositories.GroupRepository, blocks repositories.BlockRepository, users repositories.UserRepository) *Resolver {
	return &Resolver{groups: groups, blocks: blocks, users: users}
}

// ViewerFor resolves the level a non-admin user is matched on. Students use their own
// record, teachers their assigned profile. Other roles are not permitted.
func (r *Resolver) ViewerFor(ctx context.Context, user models.User) (Viewer, error) {
	switch user.Role {
	case models.RoleStudent:
		v := Viewer{User: user, Kind: models.ParticipantStudent}
		if user.Level != nil {
			v.Level = *user.Level
		}
		return v, nil
	case models.RoleTeacher:
		profile, err := r.users.GetTeacherProfile(ctx, user.ID)
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return Viewer{}, ErrNoProfile
		}
		if err != nil {
			return Viewer{}, fmt.Errorf("load teacher profile: %w", err)
		}
		v := Viewer{User: user, Kind: models.ParticipantTeacher}
		if profile.Level != nil {
			v.Level = *profile.Level
		}
		return v, nil
	default:
		return Viewer{}, ErrNotPermitted
	}
}

// VisibleGroups lists the groups a user may see: all for admins, otherwise explicit
// memberships united with level-matched class groups.
func (r *Resolver) VisibleGroups(ctx context.Context, user models.User) ([]models.Group, error) {
	if user.IsAdmin() {
		return r.groups.ListGroups(ctx)
	}
	viewer, err := r.ViewerFor(ctx, user)
	if err != nil {
		return nil, err
	}
	return r.groups.ListGroupsForViewer(ctx, user.ID, viewer.Kind, viewer.Level)
}

// CanView reports whether the user may read or join the group, ignoring blocks.
func (r *Resolver) CanView(ctx context.Context, group models.Group, user models.User) (bool, error) {
	if user.IsAdmin() {
		return true, nil
	}
	viewer, err := r.ViewerFor(ctx, user)
	if errors.Is(err, ErrNotPermitted) || errors.Is(err, ErrNoProfile) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	member, err := r.groups.IsMember(ctx, group.ID, user.ID, viewer.Kind)
	if err != nil {
		return false, fmt.Errorf("membership lookup: %w", err)
	}
	if member {
		return true, nil
	}
	switch ResolutionFor(group).(type) {
	case Computed:
		return group.MatchesLevel(viewer.Level), nil
	default:
		return false, nil
	}
}

// Authorize loads the group and applies the block check followed by the visibility
// check. It returns repositories.ErrGroupNotFound, ErrBlocked or ErrNotPermitted.
func (r *Resolver) Authorize(ctx context.Context, groupID int, user models.User) (models.Group, error) {
	group, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	blocked, err := r.blocks.IsBlocked(ctx, groupID, user.ID)
	if err != nil {
		return models.Group{}, fmt.Errorf("block lookup: %w", err)
	}
	if blocked {
		return group, ErrBlocked
	}
	ok, err := r.CanView(ctx, group, user)
	if err != nil {
		return group, err
	}
	if !ok {
		return group, ErrNotPermitted
	}
	return group, nil
}

// Members returns the group's roster.
func (r *Resolver) Members(ctx context.Context, group models.Group) ([]models.User, error) {
	switch res := ResolutionFor(group).(type) {
	case Computed:
		if res.Level == "" {
			return []models.User{}, nil
		}
		return r.users.ListStudents(ctx, res.Level, res.Department)
	case Explicit:
		ids, err := r.groups.MemberIDs(ctx, res.GroupID)
		if err != nil {
			return nil, err
		}
		return r.users.GetUsers(ctx, ids)
	default:
		return nil, fmt.Errorf("unsupported resolution %T", res)
	}
}

// MembersOf returns the ids of the group's roster.
func (r *Resolver) MembersOf(ctx context.Context, group models.Group) ([]int, error) {
	users, err := r.Members(ctx, group)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// Roster returns the members annotated with their block state.
func (r *Resolver) Roster(ctx context.Context, group models.Group) ([]models.GroupMember, error) {
	users, err := r.Members(ctx, group)
	if err != nil {
		return nil, err
	}
	blockedIDs, err := r.blocks.BlockedUserIDs(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("blocked users: %w", err)
	}
	blocked := make(map[int]struct{}, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = struct{}{}
	}

	out := make([]models.GroupMember, 0, len(users))
	for _, u := range users {
		_, isBlocked := blocked[u.ID]
		out = append(out, u.Member(isBlocked))
	}
	return out, nil
}
