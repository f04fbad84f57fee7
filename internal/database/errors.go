package database

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ammar1510/huddle/internal/apperr"
)

// SQLSTATE codes the platform reports for rejected writes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqInsufficientPriv    = "42501"
)

// readErr classifies a failed read. notFound is returned for sql.ErrNoRows.
func readErr(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && stderrors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	if known := classify(op, err); known != nil {
		return known
	}
	return apperr.Fetch("failed to load data", errors.Wrap(err, op))
}

// writeErr classifies a failed write. conflict replaces the generic conflict
// error for unique violations when set.
func writeErr(op string, err error, conflict error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if conflict != nil && stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return conflict
	}
	if known := classify(op, err); known != nil {
		return known
	}
	return apperr.Internal("failed to save changes", errors.Wrap(err, op))
}

func classify(op string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeTimeout, "the data store did not respond in time", errors.Wrap(err, op))
	}

	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return apperr.Wrap(apperr.CodeConflict, "record already exists", errors.Wrap(err, op))
	case pqInsufficientPriv:
		return apperr.Wrap(apperr.CodeAuthorization, "not allowed", errors.Wrap(err, op))
	case pqForeignKeyViolation:
		return apperr.Wrap(apperr.CodeNotFound, "referenced user does not exist", errors.Wrap(err, op))
	}
	return nil
}
