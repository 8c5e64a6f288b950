package iam

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed matches every error caused by a failed HTTP exchange,
	// whether the transport failed or the identity provider answered with a non-2xx status.
	ErrRequestFailed = errors.New("iam request failed")

	// ErrNoResults is returned by searches that matched nothing. Callers paging
	// through results treat it as the end of the result set.
	ErrNoResults = errors.New("no results")

	// ErrNotFound is returned by lookups that require exactly one match and found none.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous is returned by lookups that require exactly one match and found several.
	ErrAmbiguous = errors.New("more than one match")
)

// RequestError describes a failed call to the identity provider.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte

	// Err is the transport error, if the exchange did not complete.
	Err error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
