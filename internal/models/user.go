package models

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is the subset of the account record the chat service reads.
type User struct {
	ID           int     `db:"id" json:"id"`
	Username     string  `db:"username" json:"username"`
	Email        string  `db:"email" json:"email"`
	FullName     *string `db:"full_name" json:"full_name"`
	Role         string  `db:"role" json:"role"`
	StudentClass *string `db:"student_class" json:"student_class"`
	Level        *string `db:"level" json:"level"`
	Department   *string `db:"department" json:"department"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsStaff reports whether the user may create groups.
func (u User) IsStaff() bool { return u.Role == RoleTeacher || u.Role == RoleAdmin }

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Username
}

// Profile returns the public projection embedded in outbound frames.
func (u User) Profile() PublicProfile {
	return PublicProfile{ID: u.ID, FullName: u.DisplayName()}
}

// Member converts the user into a roster entry.
func (u User) Member(blocked bool) GroupMember {
	return GroupMember{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.DisplayName(),
		StudentClass: u.StudentClass,
		Level:        u.Level,
		IsBlocked:    blocked,
	}
}

// TeacherProfile stores the level and department a teacher is assigned to.
type TeacherProfile struct {
	UserID     int     `db:"user_id" json:"user_id"`
	Level      *string `db:"level" json:"level"`
	Department *string `db:"department" json:"department"`
}

// PublicProfile is the minimal sender identity shown to other members.
type PublicProfile struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
