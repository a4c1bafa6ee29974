package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Store errors. They wrap the shared error kinds so services and the HTTP
// layer can match them with errors.Is.
var (
	ErrNotFound = apperrors.ErrNotFound
	ErrConflict = apperrors.ErrConflict
)

const uniqueViolation = "23505"

// normalize maps driver level errors onto store errors.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

// ListAll requests every matching row from List calls.
const ListAll = -1

// DefaultLimit applies when a caller passes Limit 0.
const DefaultLimit = 20

// EffectiveLimit resolves the page size for limit; ok is false for ListAll.
func EffectiveLimit(limit int) (int, bool) {
	switch {
	case limit < 0:
		return 0, false
	case limit == 0:
		return DefaultLimit, true
	default:
		return limit, true
	}
}
