package projection

import (
	"errors"
	"fmt"

	"github.com/hanpama/protoproject/internal/language"
)

var (
	// ErrSealed is returned by any mutation of a sealed tree or registry.
	ErrSealed = errors.New("projection: sealed")
	// ErrAmbiguousField is returned when a field name is merged with a
	// different identity or kind than the one already present.
	ErrAmbiguousField = errors.New("projection: ambiguous field")
	// ErrTooManyElementSelections is returned when a connection or segment
	// selects its elements under more aliases than the builder collects.
	ErrTooManyElementSelections = errors.New("projection: too many element selections")
	// ErrEmptySelection is returned when the projected field has no
	// sub-selection.
	ErrEmptySelection = errors.New("projection: empty selection set")
	// ErrEmptyProjection is returned when no field of the root type can be
	// read from the source message.
	ErrEmptyProjection = errors.New("projection: nothing to project")
	// ErrUnsealed is returned when compiling a tree that was not sealed.
	ErrUnsealed = errors.New("projection: tree is not sealed")
	// ErrNotSupported marks permanent limitations of the compiler.
	ErrNotSupported = errors.New("projection: not supported")
)

// SchemaError reports an invalid requirement. It is raised while the engine
// is constructed and is not recoverable.
type SchemaError struct {
	Field    FieldIdentity
	Source   string
	Position *language.Position
	Message  string
	Err      error
}

func (e *SchemaError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Position != nil && e.Position.Column > 0 {
		return fmt.Sprintf("requirement of %s (col %d): %s", e.Field, e.Position.Column-1, msg)
	}
	return fmt.Sprintf("requirement of %s: %s", e.Field, msg)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// BuildError attributes a build failure to the selection that caused it.
type BuildError struct {
	Path     language.Path
	Position *language.Position
	Err      error
}

func (e *BuildError) Error() string {
	where := e.Path.String()
	if e.Position != nil {
		where = fmt.Sprintf("%s (line %d, col %d)", where, e.Position.Line, e.Position.Column)
	}
	return fmt.Sprintf("build projection at %s: %v", where, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// NotSupportedError reports a tree shape the compiler cannot project.
type NotSupportedError struct {
	Field  FieldIdentity
	Reason string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("projection: field %s: %s is not supported", e.Field, e.Reason)
}

func (e *NotSupportedError) Unwrap() error { return ErrNotSupported }
