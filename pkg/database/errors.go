package database

import (
	"github.com/lib/pq"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation
	case "23505":
		return errors.Conflict("duplicate identifier: " + pqErr.Constraint)

	// Foreign key violation
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.ValidationDetails(map[string]string{
			col: "must not be empty",
		})

	// Check constraint violation, e.g. the non-negative quantity check
	case "23514":
		return errors.Validation("constraint violated: " + pqErr.Constraint)

	default:
		return nil
	}
}
