package extractor

import "errors"

// Failure kinds. Every error returned by Extractor.Extract matches exactly one
// of these with errors.Is.
var (
	ErrUnsupportedType   = errors.New("unsupported document type")
	ErrNoExtractableText = errors.New("no extractable text")
	ErrInvalidDocument   = errors.New("invalid document")
)

// Error is a typed extraction failure.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func noText(detail string) *Error {
	return &Error{Kind: ErrNoExtractableText, Detail: detail}
}

func invalid(detail string, err error) *Error {
	return &Error{Kind: ErrInvalidDocument, Detail: detail, Err: err}
}
