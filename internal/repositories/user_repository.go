package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"school-chat/internal/models"
)

// UserRepository reads the account tables owned by the user service.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUsers(ctx context.Context, ids []int) ([]models.User, error)
	GetTeacherProfile(ctx context.Context, userID int) (models.TeacherProfile, error)
	ListStudents(ctx context.Context, level string, department string) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, full_name, role, student_class, level, department`

// GetUser fetches a single user.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers fetches the users that exist among ids.
func (r *UserRepo) GetUsers(ctx context.Context, ids []int) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// GetTeacherProfile fetches the teacher's assignment.
func (r *UserRepo) GetTeacherProfile(ctx context.Context, userID int) (models.TeacherProfile, error) {
	var profile models.TeacherProfile
	err := r.db.GetContext(ctx, &profile, `SELECT user_id, level, department FROM teacher_profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TeacherProfile{}, ErrProfileNotFound
	}
	return profile, err
}

// ListStudents returns students of a level, narrowed by department when one is given.
func (r *UserRepo) ListStudents(ctx context.Context, level string, department string) ([]models.User, error) {
	users := []models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE role=$1 AND level=$2`
	args := []any{models.RoleStudent, level}
	if department != "" {
		query += ` AND department=$3`
		args = append(args, department)
	}
	err := r.db.SelectContext(ctx, &users, query+` ORDER BY id`, args...)
	return users, err
}
