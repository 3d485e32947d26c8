package services

import (
	"errors"
	"fmt"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

const (
	CodeDepthExceeded      = "ORG_DEPTH_EXCEEDED"
	CodeCycleRejected      = "ORG_CYCLE_REJECTED"
	CodePathEncoding       = "ORG_PATH_ENCODING"
	CodeHasChildren        = "ORG_HAS_CHILDREN"
	CodeHasDependents      = "ORG_HAS_DEPENDENTS"
	CodeNotFound           = "ORG_NOT_FOUND"
	CodeParentNotFound     = "ORG_PARENT_NOT_FOUND"
	CodeDepartmentNotFound = "ORG_DEPARTMENT_NOT_FOUND"
	CodeInvalidBody        = "ORG_INVALID_BODY"
	CodeConflict           = "ORG_CONFLICT"
	CodeInternal           = "ORG_INTERNAL"
)

var (
	ErrDepthExceeded      = errors.New("depth exceeded")
	ErrCycleRejected      = errors.New("cycle rejected")
	ErrHasChildren        = errors.New("department has children")
	ErrHasDependents      = errors.New("department has employees")
	ErrNotFound           = errors.New("not found")
	ErrParentNotFound     = errors.New("parent department not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")

	// ErrEncoding is re-exported so callers need not import orgpath to match it.
	ErrEncoding = orgpath.ErrEncoding
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func depthExceeded(level int) *ServiceError {
	return newServiceError(422, CodeDepthExceeded,
		fmt.Sprintf("resulting level %d exceeds the maximum depth", level), ErrDepthExceeded)
}

func encodingError(err error) *ServiceError {
	return newServiceError(500, CodePathEncoding, "cannot encode department path", err)
}

func invalidInput(format string, args ...any) *ServiceError {
	return newServiceError(400, CodeInvalidBody, fmt.Sprintf(format, args...), ErrInvalidInput)
}

// notFoundAs rewrites a missing-row failure into the given error, leaving others untouched.
// The rewritten error carries only the sentinel so it matches the same way for every store.
func notFoundAs(err error, status int, code, message string, sentinel error) error {
	if err == nil {
		return nil
	}
	mapped := mapPgErrorToServiceError(err)
	var svcErr *ServiceError
	if errors.As(mapped, &svcErr) && svcErr.Code == CodeNotFound {
		return newServiceError(status, code, message, sentinel)
	}
	return mapped
}
