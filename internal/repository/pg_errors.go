package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes the store translates into domain errors.
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgUniqueViolation     = "23505"
	pgInvalidText         = "22P02"
	pgStringTooLong       = "22001"
)

// classify maps a driver error onto the domain taxonomy. op names the
// failing repository call, e.g. "risk_check_repo.Create".
//
// Constraint violations are caller bugs (validation / referential). Every
// other driver or transport failure surfaces as domain.ErrStorageUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrReferentialIntegrity)
		case pgCheckViolation, pgNotNullViolation, pgInvalidText, pgStringTooLong:
			return fmt.Errorf("%s: %w", op, domain.NewValidationError(constraintField(pqErr), pqErr.Message))
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.NewValidationError("id", "already exists"))
		}
		return &domain.StorageError{Op: op, Err: err}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &domain.StorageError{Op: op, Err: err}
}

// constraintField prefers the reported column; check constraints only carry
// their name, which by convention starts with the table and ends in _check.
func constraintField(e *pq.Error) string {
	if e.Column != "" {
		return e.Column
	}
	return e.Constraint
}
