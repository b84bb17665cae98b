package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/stockwise/stockwise-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or has no dedicated mapping.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.NotFound("referenced record")

	// Invalid text representation (22P02), e.g. a malformed UUID
	case "22P02":
		return errors.BadRequest("malformed identifier")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.FieldValidation(col, "must not be empty")

	default:
		return nil
	}
}

// MapError classifies any store error. Constraint violations keep their domain meaning,
// a missing row becomes NotFound and everything else is a retryable storage failure.
// AppErrors pass through untouched.
func MapError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.IsAppError(err) {
		return err
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource)
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Storage(err, resource+" store timed out")
	}
	return errors.Storage(err, resource+" store unavailable")
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Precondition("insufficient stock: quantity on hand cannot become negative")

	case strings.Contains(constraint, "expiration_after_received"):
		return errors.FieldValidation("expiration_date", "must be after the received date")

	case strings.Contains(constraint, "batch_quantity_positive"):
		return errors.FieldValidation("quantity", "must be greater than zero")

	case strings.Contains(constraint, "status_valid"):
		return errors.FieldValidation("status", "must be one of: active, removed")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "batch_number"):
		return "a batch with this batch number already exists"
	case strings.Contains(constraint, "product_branch"):
		return "an inventory position for this product and branch already exists"
	default:
		return "a record with these values already exists"
	}
}
