package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which bridge operation produced the error
type Phase string

const (
	PhaseConfig    Phase = "config"    // validation and boundary marshaling
	PhaseCreate    Phase = "create"    // engine_create
	PhaseRegister  Phase = "register"  // callback registration
	PhasePublish   Phase = "publish"   // engine_publish
	PhaseUnpublish Phase = "unpublish" // engine_unpublish
	PhaseShutdown  Phase = "shutdown"  // disconnect and teardown
	PhaseDispatch  Phase = "dispatch"  // callback delivery
	PhaseBoundary  Phase = "boundary"  // ownership contract checks
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindEngineCreation    Kind = "engine_creation"
	KindNotReady          Kind = "not_ready"
	KindChannelClosed     Kind = "channel_closed"
	KindBoundaryViolation Kind = "boundary_violation"
	KindAlreadyPublished  Kind = "already_published"
	KindEngineCall        Kind = "engine_call"
	KindTimeout           Kind = "timeout"
	KindClosed            Kind = "closed"
)

// Sentinels match any error of their kind through errors.Is, whatever the phase.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrEngineCreation    = &Error{Kind: KindEngineCreation}
	ErrNotReady          = &Error{Kind: KindNotReady}
	ErrChannelClosed     = &Error{Kind: KindChannelClosed}
	ErrBoundaryViolation = &Error{Kind: KindBoundaryViolation}
	ErrAlreadyPublished  = &Error{Kind: KindAlreadyPublished}
	ErrEngineCall        = &Error{Kind: KindEngineCall}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrClosed            = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Field  string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Field sets the offending configuration field or argument name
func (b *Builder) Field(name string) *Builder {
	b.err.Field = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Configuration creates an error for a field that cannot be validated or marshaled
func Configuration(field, detail string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfiguration,
		Field:  field,
		Detail: detail,
	}
}

// EmbeddedNUL creates a configuration error for a text field that cannot
// become a NUL-terminated native string
func EmbeddedNUL(field string, offset int) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfiguration,
		Field:  field,
		Detail: fmt.Sprintf("embedded NUL byte at offset %d", offset),
		Value:  offset,
	}
}

// EngineCreation creates an error for a failed or null engine_create
func EngineCreation(engine string, cause error) *Error {
	detail := fmt.Sprintf("engine %q returned a null reference", engine)
	if cause != nil {
		detail = fmt.Sprintf("engine %q failed to create", engine)
	}
	return &Error{
		Phase:  PhaseCreate,
		Kind:   KindEngineCreation,
		Detail: detail,
		Cause:  cause,
	}
}

// NotReady creates an error for an operation attempted in the wrong status
func NotReady(phase Phase, current fmt.Stringer) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotReady,
		Detail: fmt.Sprintf("client status is %s", current),
		Value:  current,
	}
}

// AlreadyPublished creates an error for a duplicate namespace
func AlreadyPublished(namespace string) *Error {
	return &Error{
		Phase:  PhasePublish,
		Kind:   KindAlreadyPublished,
		Detail: fmt.Sprintf("namespace %q is already published", namespace),
		Value:  namespace,
	}
}

// EngineCall wraps a failure returned by an engine entry point
func EngineCall(phase Phase, entry string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngineCall,
		Detail: entry,
		Cause:  cause,
	}
}

// Timeout creates an error for a bounded wait that elapsed. cause is
// usually the context error of the wait and may be nil.
func Timeout(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: what,
		Cause:  cause,
	}
}

// Closed creates an error for use of a released resource
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s already released", what),
	}
}

// ChannelClosed creates an error for an event that had no consumer left
func ChannelClosed(kind string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindChannelClosed,
		Detail: fmt.Sprintf("%s consumer dropped", kind),
		Cause:  cause,
	}
}

// BoundaryViolation creates an error for a breach of the ownership protocol.
// It is never expected at runtime; callers usually panic with it.
func BoundaryViolation(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseBoundary,
		Kind:   KindBoundaryViolation,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
