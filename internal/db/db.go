package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the Postgres pool and runs migrations.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.Info("database migrations applied")
	}
	return db, nil
}

// Migrations creates the tables read and written by the chat core. users and
// teacher_profiles are owned by the account service and only created here when
// running standalone.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL DEFAULT '',
            full_name TEXT,
            role TEXT NOT NULL,
            student_class TEXT,
            level TEXT,
            department TEXT
        );`,
	`CREATE TABLE IF NOT EXISTS teacher_profiles (
            user_id INT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
            level TEXT,
            department TEXT
        );`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            level TEXT,
            department TEXT,
            created_by INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_class_group BOOLEAN NOT NULL DEFAULT FALSE,
            is_custom_group BOOLEAN NOT NULL DEFAULT FALSE,
            muted_until TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS group_students (
            group_id INT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            student_id INT NOT NULL,
            PRIMARY KEY(group_id, student_id)
        );`,
	`CREATE TABLE IF NOT EXISTS group_teachers (
            group_id INT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            teacher_id INT NOT NULL,
            PRIMARY KEY(group_id, teacher_id)
        );`,
	`CREATE TABLE IF NOT EXISTS blocked_users (
            group_id INT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            blocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(group_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id SERIAL PRIMARY KEY,
            group_id INT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            content TEXT,
            file_url TEXT,
            file_type TEXT,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            edit_history TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS chat_messages_group_created_idx ON chat_messages (group_id, created_at);`,
}

// Migrate applies Migrations in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, m := range Migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
