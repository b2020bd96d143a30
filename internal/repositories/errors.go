package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrProfileNotFound = errors.New("teacher profile not found")
	ErrAlreadyBlocked  = errors.New("user is already blocked in this group")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
