package main

import (
	"errors"
	"net/http"

	"github.com/Dr1DeX/orgtree/modules/org/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitNotFound   = 5
	exitConflict   = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classify attaches an exit code derived from the service error status.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return err
	}
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		return withCode(exitDB, err)
	}
	switch svcErr.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return withCode(exitValidation, err)
	case http.StatusNotFound:
		return withCode(exitNotFound, err)
	case http.StatusConflict:
		return withCode(exitConflict, err)
	default:
		return withCode(exitDB, err)
	}
}
