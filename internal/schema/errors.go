package schema

import (
	"errors"
	"fmt"
)

// ErrSchemaViolation is the sentinel matched by every *SchemaViolation.
var ErrSchemaViolation = errors.New("schema violation")

// ErrInvalidTransition reports a detection kind change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid detection transition")

// SchemaViolation describes an entity that failed validation. It is fatal to
// the single entity being constructed, never to a whole ingestion run.
type SchemaViolation struct {
	Entity string
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", ErrSchemaViolation, e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s: %s.%s %s", ErrSchemaViolation, e.Entity, e.Field, e.Reason)
}

// Is lets errors.Is match the package sentinel.
func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// ErrorKind classifies the violation for status mapping.
func (e *SchemaViolation) ErrorKind() string {
	return "validation"
}

func violation(entity, field, format string, args ...any) error {
	return &SchemaViolation{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}
