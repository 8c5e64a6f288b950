// Package errors attaches stack traces to errors that abort a command.
package errors

import (
	"errors"

	goerrors "github.com/go-errors/errors"
)

// ErrorWithStack wraps the error with stack if error is non nil.
// Errors that already carry a stack are returned unchanged.
func ErrorWithStack(err error) error {
	if err == nil {
		return nil
	}
	var withStack *goerrors.Error
	if errors.As(err, &withStack) {
		return err
	}
	return goerrors.Wrap(err, 1)
}

// Stack returns the error message followed by the stack trace recorded by
// ErrorWithStack. Errors without a recorded stack return just their message.
func Stack(err error) string {
	if err == nil {
		return ""
	}
	var withStack *goerrors.Error
	if errors.As(err, &withStack) {
		return withStack.ErrorStack()
	}
	return err.Error()
}
