package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

// sentinelErrors maps failures reported by stores that do not speak SQLSTATE.
var sentinelErrors = []struct {
	sentinel error
	status   int
	code     string
}{
	{ErrDepthExceeded, 422, CodeDepthExceeded},
	{ErrCycleRejected, 422, CodeCycleRejected},
	{ErrHasChildren, 409, CodeHasChildren},
	{ErrHasDependents, 409, CodeHasDependents},
	{ErrParentNotFound, 422, CodeParentNotFound},
	{ErrDepartmentNotFound, 422, CodeDepartmentNotFound},
	{ErrInvalidInput, 400, CodeInvalidBody},
	{ErrConflict, 409, CodeConflict},
}

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return newServiceError(404, CodeNotFound, "not found", errors.Join(ErrNotFound, err))
	}
	if errors.Is(err, orgpath.ErrEncoding) {
		return encodingError(err)
	}
	for _, m := range sentinelErrors {
		if errors.Is(err, m.sentinel) {
			return newServiceError(m.status, m.code, m.sentinel.Error(), err)
		}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		if pgErr.ConstraintName == "org_departments_path_key" {
			return newServiceError(409, CodeConflict, "department path already taken", errors.Join(ErrConflict, err))
		}
		return newServiceError(409, CodeConflict, "unique constraint violated", errors.Join(ErrConflict, err))
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		switch pgErr.ConstraintName {
		case "org_departments_parent_id_fkey":
			if isDeleteViolation(pgErr) {
				return newServiceError(409, CodeHasChildren, "department has child departments", errors.Join(ErrHasChildren, err))
			}
			return newServiceError(422, CodeParentNotFound, "parent department not found", errors.Join(ErrParentNotFound, err))
		case "org_employees_department_id_fkey":
			if isDeleteViolation(pgErr) {
				return newServiceError(409, CodeHasDependents, "department has employees", errors.Join(ErrHasDependents, err))
			}
			return newServiceError(422, CodeDepartmentNotFound, "department not found", errors.Join(ErrDepartmentNotFound, err))
		default:
			return newServiceError(422, CodeParentNotFound, "foreign key violation", err)
		}
	case "23514": // check_violation
		recordWriteConflict("check")
		if pgErr.ConstraintName == "org_departments_level_check" {
			return newServiceError(422, CodeDepthExceeded, "level out of range", errors.Join(ErrDepthExceeded, err))
		}
		return newServiceError(400, CodeInvalidBody, "check constraint violated", errors.Join(ErrInvalidInput, err))
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return newServiceError(409, CodeConflict, "concurrent update, retry", errors.Join(ErrConflict, err))
	case "22P02", "42601": // ltree syntax errors surface as invalid text representation
		return encodingError(err)
	default:
		return newServiceError(500, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}

// isDeleteViolation tells apart "row is still referenced" from "referenced row is missing".
func isDeleteViolation(pgErr *pgconn.PgError) bool {
	return strings.Contains(pgErr.Detail, "is still referenced")
}
