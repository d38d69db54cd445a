package main

import (
	"github.com/go-faster/errors"

	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/tabular"
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
	exitBackend    = 4
	exitPartial    = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// classify attaches an exit code to err from the sentinel it wraps.
func classify(err error) error {
	var ce *cliError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return err
	case errors.Is(err, tabular.ErrParse),
		errors.Is(err, services.ErrMappingGap),
		errors.Is(err, services.ErrNoValidRows),
		errors.Is(err, item.ErrInvalid):
		return withCode(exitValidation, err)
	case errors.Is(err, services.ErrTransport),
		errors.Is(err, outcome.ErrRejected):
		return withCode(exitBackend, err)
	case errors.Is(err, services.ErrInvalidBatch),
		errors.Is(err, services.ErrNotPartial):
		return withCode(exitUsage, err)
	}
	return err
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
