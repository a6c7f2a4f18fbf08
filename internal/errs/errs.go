// Package errs contains sentinel errors shared by the storage, service and
// web layers.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates the caller may not act on the entity.
	ErrForbidden = errors.New("forbidden")
)
