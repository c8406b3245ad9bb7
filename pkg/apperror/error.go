// Package apperror defines the error taxonomy shared by every turnbase
// subsystem (schema, compiler, query-set, versioning, connection pool).
package apperror

import "fmt"

// Kind identifies which of the error classes in spec.md §7 an Error belongs
// to. Callers should branch on Kind, never on Message text.
type Kind string

const (
	// KindSchema covers malformed models: duplicate primary key, unknown
	// field type, missing FK target, reserved field name.
	KindSchema Kind = "schema_error"
	// KindCompile covers an AST that cannot be rendered to SQL.
	KindCompile Kind = "compile_error"
	// KindBind covers a caller-supplied value a field's serializer rejects.
	KindBind Kind = "bind_error"
	// KindNotFound covers a Get(id) that matched zero rows.
	KindNotFound Kind = "not_found"
	// KindDuplicateKey covers a backend unique-constraint violation.
	KindDuplicateKey Kind = "duplicate_key"
	// KindMissingForeignKey covers a save that would leave a required FK
	// null with no reverse-FK context available.
	KindMissingForeignKey Kind = "missing_foreign_key"
	// KindVersioning covers an operation inconsistent with turn state.
	KindVersioning Kind = "versioning_error"
	// KindCancelled covers a caller-cancelled in-flight operation.
	KindCancelled Kind = "cancelled"
	// KindTimeout covers a statement that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindConnectionLost covers a dropped connection to the backend.
	KindConnectionLost Kind = "connection_lost"
	// KindDecode covers a stored value that failed to deserialize.
	KindDecode Kind = "decode_error"
)

// Error is the single error type returned by every exported turnbase
// operation. It is immutable; With* methods return a modified copy.
type Error struct {
	Kind     Kind
	Message  string
	Internal error
	Details  map[string]any
}

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped internal error, if any.
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of e with an internal error attached.
func (e *Error) WithInternal(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Internal: err, Details: e.Details}
}

// WithMessage returns a copy of e with a replaced message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Message: message, Internal: e.Internal, Details: e.Details}
}

// WithDetails returns a copy of e with details merged in; existing keys are
// overwritten by d.
func (e *Error) WithDetails(d map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(d))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range d {
		merged[k] = v
	}
	return &Error{Kind: e.Kind, Message: e.Message, Internal: e.Internal, Details: merged}
}

// WithSQL attaches the compiled SQL text and bound parameters to e for
// diagnostics, per spec.md §7: "the SQL text and parameter list are
// attached to the error".
func (e *Error) WithSQL(sql string, params []any) *Error {
	return e.WithDetails(map[string]any{"sql": sql, "params": params})
}

// Is lets errors.Is(err, ErrNotFound) match on Kind, since every call site
// constructs a fresh *Error rather than reusing a sentinel pointer.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for errors.Is comparisons; build richer instances with
// New/WithMessage/WithInternal rather than mutating these.
var (
	ErrSchema            = New(KindSchema, "schema error")
	ErrCompile           = New(KindCompile, "compile error")
	ErrBind              = New(KindBind, "bind error")
	ErrNotFound          = New(KindNotFound, "not found")
	ErrDuplicateKey      = New(KindDuplicateKey, "duplicate key")
	ErrMissingForeignKey = New(KindMissingForeignKey, "missing foreign key")
	ErrVersioning        = New(KindVersioning, "versioning error")
	ErrCancelled         = New(KindCancelled, "cancelled")
	ErrTimeout           = New(KindTimeout, "timeout")
	ErrConnectionLost    = New(KindConnectionLost, "connection lost")
	ErrDecode            = New(KindDecode, "decode error")
)
