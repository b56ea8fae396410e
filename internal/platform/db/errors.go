package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

// Postgres SQLSTATE codes we classify.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgStringTooLong       = "22001"
)

// Classify turns driver errors into apperr kinds. what names the entity for
// not-found messages ("donor", "blood unit"). Errors that are already
// classified, and nil, pass through unchanged.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &apperr.Error{Kind: apperr.KindConflict, Message: what + " already exists", Err: err}
		case pgForeignKeyViolation:
			if missingParent(pgErr) {
				return &apperr.Error{Kind: apperr.KindNotFound, Message: what + " refers to a record that does not exist", Err: err}
			}
			return &apperr.Error{Kind: apperr.KindConflict, Message: what + " is referenced by other records", Err: err}
		case pgCheckViolation:
			return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid " + what, Err: err}
		case pgStringTooLong:
			return &apperr.Error{Kind: apperr.KindValidation, Message: what + " has a value that is too long", Err: err}
		}
	}
	return apperr.Internal(err)
}

// missingParent tells the two sides of a foreign key violation apart. An
// insert or update naming an absent parent reports "is not present in
// table"; deleting a parent that still has children reports "is still
// referenced".
func missingParent(pgErr *pgconn.PgError) bool {
	return strings.Contains(pgErr.Detail, "is not present in table") ||
		strings.HasPrefix(pgErr.Message, "insert or update on table")
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
