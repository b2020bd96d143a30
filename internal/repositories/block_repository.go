package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// BlockRepository manages per-group block entries.
type BlockRepository interface {
	Block(ctx context.Context, groupID int, userID int) error
	Unblock(ctx context.Context, groupID int, userID int) error
	IsBlocked(ctx context.Context, groupID int, userID int) (bool, error)
	BlockedUserIDs(ctx context.Context, groupID int) ([]int, error)
}

// BlockRepo is a sqlx implementation of BlockRepository.
type BlockRepo struct {
	db *sqlx.DB
}

// NewBlockRepo constructs a BlockRepo.
func NewBlockRepo(db *sqlx.DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// Block inserts a block entry and returns ErrAlreadyBlocked when one exists.
func (r *BlockRepo) Block(ctx context.Context, groupID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM blocked_users WHERE group_id=$1 AND user_id=$2)`, groupID, userID); err != nil {
		return err
	}
	if exists {
		err = ErrAlreadyBlocked
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO blocked_users (group_id, user_id) VALUES ($1, $2)`, groupID, userID); err != nil {
		if isUniqueViolation(err) {
			err = ErrAlreadyBlocked
		}
		return err
	}
	return tx.Commit()
}

// Unblock removes the block entry. Absence is not an error.
func (r *BlockRepo) Unblock(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocked_users WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

// IsBlocked checks for a block entry.
func (r *BlockRepo) IsBlocked(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM blocked_users WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// BlockedUserIDs lists users blocked in the group.
func (r *BlockRepo) BlockedUserIDs(ctx context.Context, groupID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM blocked_users WHERE group_id=$1 ORDER BY user_id`, groupID)
	return ids, err
}
