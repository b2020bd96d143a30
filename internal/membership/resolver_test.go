package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"school-chat/internal/models"
	"school-chat/internal/repositories"
	"school-chat/internal/repositories/memory"
)

func ptr(s string) *string { return &s }

func newResolver(db *memory.DB) *Resolver {
	return NewResolver(db.Groups(), db.Blocks(), db.Users())
}

func TestResolutionFor(t *testing.T) {
	class := models.Group{ID: 1, IsClassGroup: true, Level: ptr("SS1"), Department: ptr("science")}
	require.Equal(t, Computed{Level: "SS1", Department: "science"}, ResolutionFor(class))

	general := models.Group{ID: 2, IsClassGroup: true, Level: ptr("SS1"), Department: ptr("General")}
	require.Equal(t, Computed{Level: "SS1"}, ResolutionFor(general))

	custom := models.Group{ID: 3, IsCustomGroup: true}
	require.Equal(t, Explicit{GroupID: 3}, ResolutionFor(custom))
}

func TestVisibleGroupsIsUnionOfMembershipAndLevel(t *testing.T) {
	db := memory.Open()
	ctx := context.Background()
	r := newResolver(db)

	student := models.User{ID: 10, Role: models.RoleStudent, Level: ptr("JSS1")}
	teacher := models.User{ID: 20, Role: models.RoleTeacher}
	db.PutUser(student)
	db.PutUser(teacher)
	db.PutTeacherProfile(models.TeacherProfile{UserID: 20, Level: ptr("JSS2")})

	jss1, _ := db.Groups().CreateGroup(ctx, repositories.NewGroup{Name: "JSS1", Level: ptr("JSS1"), IsClassGroup: true})
	jss2, _ := db.Groups().CreateGroup(ctx, repositories.NewGroup{Name: "JSS2", Level: ptr("JSS2"), IsClassGroup: true})
	chess, _ := db.Groups().CreateGroup(ctx, repositories.NewGroup{Name: "chess", IsCustomGroup: true, StudentIDs: []int{10}})
	staff, _ := db.Groups().CreateGroup(ctx, repositories.NewGroup{Name: "staff", IsCustomGroup: true, TeacherIDs: []int{20}})

	groups, err := r.VisibleGroups(ctx, student)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{jss1.ID, chess.ID}, groupIDs(groups))

	groups, err = r.VisibleGroups(ctx, teacher)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{jss2.ID, staff.ID}, groupIDs(groups))

	admin := models.User{ID: 1, Role: models.RoleAdmin}
	groups, err = r.VisibleGroups(ctx, admin)
	require.NoError(t, err)
	require.Len(t, groups, 4)
}

func TestVisibleGroupsTeacherWithoutProfile(t *testing.T) {
	r := newResolver(memory.Open())
	_, err := r.VisibleGroups(context.Background(), models.User{ID: 5, Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrNoProfile)

	_, err = r.VisibleGroups(context.Background(), models.User{ID: 6, Role: "parent"})
	require.ErrorIs(t, err, ErrNotPermitted)
}

func TestAuthorizeOrder(t *testing.T) {
	db := memory.Open()
	ctx := context.Background()
	r := newResolver(db)

	student := models.User{ID: 2, Role: models.RoleStudent, Level: ptr("JSS1")}
	db.PutUser(student)
	class := db.CreateGroupWithID(models.Group{ID: 42, Name: "JSS1", Level: ptr("JSS1"), IsClassGroup: true})
	other := db.CreateGroupWithID(models.Group{ID: 43, Name: "JSS3", Level: ptr("JSS3"), IsClassGroup: true})

	g, err := r.Authorize(ctx, class.ID, student)
	require.NoError(t, err)
	require.Equal(t, class.ID, g.ID)

	_, err = r.Authorize(ctx, other.ID, student)
	require.ErrorIs(t, err, ErrNotPermitted)

	_, err = r.Authorize(ctx, 999, student)
	require.ErrorIs(t, err, repositories.ErrGroupNotFound)

	require.NoError(t, db.Blocks().Block(ctx, class.ID, student.ID))
	_, err = r.Authorize(ctx, class.ID, student)
	require.ErrorIs(t, err, ErrBlocked)

	// blocked admins are rejected too
	admin := models.User{ID: 1, Role: models.RoleAdmin}
	require.NoError(t, db.Blocks().Block(ctx, other.ID, admin.ID))
	_, err = r.Authorize(ctx, other.ID, admin)
	require.ErrorIs(t, err, ErrBlocked)
}

func TestCustomGroupRequiresExplicitMembership(t *testing.T) {
	db := memory.Open()
	ctx := context.Background()
	r := newResolver(db)

	g, _ := db.Groups().CreateGroup(ctx, repositories.NewGroup{Name: "club", Level: ptr("JSS1"), IsCustomGroup: true})
	student := models.User{ID: 3, Role: models.RoleStudent, Level: ptr("JSS1")}

	ok, err := r.CanView(ctx, g, student)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.Groups().AddMembers(ctx, g.ID, []int{3}, nil))
	ok, err = r.CanView(ctx, g, student)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRosterComputedAndExplicit(t *testing.T) {
	db := memory.Open()
	ctx := context.Background()
	r := newResolver(db)

	db.PutUser(models.User{ID: 1, Username: "ada", Role: models.RoleStudent, Level: ptr("SS1"), Department: ptr("science")})
	db.PutUser(models.User{ID: 2, Username: "bo", Role: models.RoleStudent, Level: ptr("SS1"), Department: ptr("arts")})
	db.PutUser(models.User{ID: 3, Username: "cy", Role: models.RoleTeacher})

	science := db.CreateGroupWithID(models.Group{ID: 7, Name: "SS1 sci", Level: ptr("SS1"), Department: ptr("science"), IsClassGroup: true})
	everyone := db.CreateGroupWithID(models.Group{ID: 8, Name: "SS1", Level: ptr("SS1"), Department: ptr("general"), IsClassGroup: true})
	require.NoError(t, db.Blocks().Block(ctx, science.ID, 1))

	members, err := r.Roster(ctx, science)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, 1, members[0].ID)
	require.True(t, members[0].IsBlocked)

	ids, err := r.MembersOf(ctx, everyone)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, ids)

	club, _ := db.Groups().CreateGroup(ctx, repositories.NewGroup{Name: "club", IsCustomGroup: true, StudentIDs: []int{2}, TeacherIDs: []int{3}})
	members, err = r.Roster(ctx, club)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.False(t, members[0].IsBlocked)
}

func groupIDs(groups []models.Group) []int {
	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids
}
