package envelope

import (
	"errors"
	"fmt"
)

// Kind classifies why a payload could not be normalized.
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindMissingEnvelope
	KindSchemaMismatch
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindMissingEnvelope:
		return "missing envelope"
	case KindSchemaMismatch:
		return "schema mismatch"
	default:
		return "unknown"
	}
}

var (
	ErrMalformed       = errors.New("malformed json")
	ErrMissingEnvelope = errors.New("missing 'data' field in json")
	ErrSchemaMismatch  = errors.New("payload does not match schema")
)

// ParseError reports an upstream response that could not be interpreted.
// Snippet never holds more than the first 100 characters of the payload.
type ParseError struct {
	Kind    Kind
	Snippet string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Kind)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error's kind.
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrMissingEnvelope:
		return e.Kind == KindMissingEnvelope
	case ErrSchemaMismatch:
		return e.Kind == KindSchemaMismatch
	}
	return false
}
