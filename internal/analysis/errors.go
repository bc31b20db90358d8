package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse matches replies that could not be parsed into the
	// expected structure, even after repair.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrServiceError matches transport and API failures of the model provider.
	ErrServiceError = errors.New("model service error")
)

// MalformedResponseError carries the parse failure and a bounded preview of
// the offending reply.
type MalformedResponseError struct {
	Err     error
	Preview string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("could not parse model response as JSON: %v; response preview: %s", e.Err, e.Preview)
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// SchemaMismatchError is returned when the reply parsed as JSON but does not
// fit the extraction schema even after coercion.
type SchemaMismatchError struct {
	Err     error
	Preview string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("model response does not match extraction schema: %v; response preview: %s", e.Err, e.Preview)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrMalformedResponse }

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// ServiceError wraps a failed model call. Timeout is set when the call hit
// its deadline; callers treat it like any other service error.
type ServiceError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Provider == "" {
		return "model service error: " + e.Err.Error()
	}
	return fmt.Sprintf("model service error (%s): %v", e.Provider, e.Err)
}

func (e *ServiceError) Is(target error) bool { return target == ErrServiceError }

func (e *ServiceError) Unwrap() error { return e.Err }

// Error is returned when the provider answered but the reply is unusable.
// It is distinct from ServiceError.
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }
