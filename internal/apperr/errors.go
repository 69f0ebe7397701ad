// Package apperr holds the sentinel errors shared across package boundaries.
package apperr

import "errors"

var (
	// ErrNotFound reports an unknown job, invoice, company or item.
	ErrNotFound = errors.New("not found")

	// ErrPersistence reports an aborted write. Nothing from the failed write
	// is visible afterwards.
	ErrPersistence = errors.New("persistence failure")

	// ErrValidation reports that a record failed business-rule validation.
	// The accompanying report carries the field errors.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidInput reports a malformed request, such as an unsupported upload type.
	ErrInvalidInput = errors.New("invalid input")
)
