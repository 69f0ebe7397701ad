package extraction

import (
	"errors"
	"fmt"
)

// Causes of an extraction failure
var (
	// ErrBackendUnavailable is returned when the recognition backend or
	// vision model could not be reached or refused the request.
	ErrBackendUnavailable = errors.New("recognition backend unavailable")

	// ErrUnreadableDocument is returned when the stored document cannot be
	// read or decoded into an image.
	ErrUnreadableDocument = errors.New("document could not be read")

	// ErrMalformedResponse is returned when a vision model answers with
	// something other than a JSON object of the expected shape.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyResponse is returned when a vision model answers with nothing.
	ErrEmptyResponse = errors.New("empty model response")
)

// Failure describes why an extraction attempt failed.
type Failure struct {
	// Op is the operation that failed, e.g. "PatternExtract".
	Op string

	// Err is one of the sentinel causes above.
	Err error

	// Details carries backend-specific context.
	Details string
}

func (f *Failure) Error() string {
	if f.Details != "" {
		return fmt.Sprintf("extraction: %s failed: %v: %s", f.Op, f.Err, f.Details)
	}
	return fmt.Sprintf("extraction: %s failed: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Is(target error) bool {
	return errors.Is(f.Err, target)
}

// fail returns err unchanged when it already is a Failure, and otherwise
// wraps it with cause as the sentinel.
func fail(op string, cause error, err error) error {
	var existing *Failure
	if errors.As(err, &existing) {
		return err
	}
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Failure{Op: op, Err: cause, Details: details}
}

// IsFailure reports whether err is an extraction failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
