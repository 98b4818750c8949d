package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// MapRepoError maps persistence failures into service error codes.
func MapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(CodeConflict, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeInternal, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return Wrap(CodeConflict, op, err) // unique_violation
		case "23503":
			return Wrap(CodeInvalidInput, op, err) // foreign_key_violation
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return Wrap(CodeConflict, op, err)
	default:
		return Wrap(CodeInternal, op, err)
	}
}
