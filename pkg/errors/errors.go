// Package errors provides structured error handling for kpiq.
//
// Errors carry a numeric code, a severity, context fields and an optional
// cause. Codes follow a hierarchical scheme:
//   - 1xxx: Configuration errors
//   - 2xxx: Connection errors
//   - 3xxx: Query validation errors
//   - 4xxx: Execution errors
//   - 5xxx: Catalog errors
//   - 9xxx: Internal errors
//
// Every code belongs to exactly one Kind, the coarse taxonomy reported to
// callers of the query engine.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Code is a numeric error code for programmatic handling.
type Code int

// Error codes by category
const (
	// Configuration errors (1xxx)
	ErrCodeConfigInvalid   Code = 1001
	ErrCodeConfigParse     Code = 1002
	ErrCodeUnknownBackend  Code = 1003
	ErrCodeUnknownMode     Code = 1004
	ErrCodeBackendDisabled Code = 1005

	// Connection errors (2xxx)
	ErrCodeConnectionFailed Code = 2001
	ErrCodeConnectionProbe  Code = 2002
	ErrCodeConnectionLost   Code = 2003

	// Validation errors (3xxx)
	ErrCodeEmptyQuery       Code = 3001
	ErrCodeNotSelect        Code = 3002
	ErrCodeMultiStatement   Code = 3003
	ErrCodeForbiddenKeyword Code = 3004
	ErrCodeBadRequest       Code = 3005

	// Execution errors (4xxx)
	ErrCodeUnsupportedQuery Code = 4001
	ErrCodeParseError       Code = 4002
	ErrCodeTimeout          Code = 4003
	ErrCodeExecFailed       Code = 4004

	// Catalog errors (5xxx)
	ErrCodeTableNotFound  Code = 5001
	ErrCodeColumnNotFound Code = 5002
	ErrCodeCatalogLoad    Code = 5003

	// Internal errors (9xxx)
	ErrCodeInternal Code = 9001
	ErrCodePanic    Code = 9002
)

// String returns the error code as a string.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", c)
}

// Category returns the category for this code.
func (c Code) Category() string {
	switch {
	case c >= 1000 && c < 2000:
		return "configuration"
	case c >= 2000 && c < 3000:
		return "connection"
	case c >= 3000 && c < 4000:
		return "validation"
	case c >= 4000 && c < 5000:
		return "execution"
	case c >= 5000 && c < 6000:
		return "catalog"
	case c >= 9000:
		return "internal"
	default:
		return "unknown"
	}
}

// Kind is the caller-facing error taxonomy of the query engine.
type Kind string

const (
	KindNone             Kind = ""
	KindInvalidQuery     Kind = "InvalidQuery"
	KindUnsupportedQuery Kind = "UnsupportedQuery"
	KindTableNotFound    Kind = "TableNotFound"
	KindColumnNotFound   Kind = "ColumnNotFound"
	KindConnectionFailed Kind = "ConnectionFailed"
	KindConfiguration    Kind = "Configuration"
	KindTimeout          Kind = "Timeout"
)

// Kind maps a code onto the engine taxonomy.
func (c Code) Kind() Kind {
	switch c {
	case ErrCodeEmptyQuery, ErrCodeNotSelect, ErrCodeMultiStatement, ErrCodeForbiddenKeyword,
		ErrCodeBadRequest:
		return KindInvalidQuery
	case ErrCodeUnsupportedQuery, ErrCodeParseError:
		return KindUnsupportedQuery
	case ErrCodeTableNotFound:
		return KindTableNotFound
	case ErrCodeColumnNotFound:
		return KindColumnNotFound
	case ErrCodeConnectionFailed, ErrCodeConnectionProbe, ErrCodeConnectionLost,
		ErrCodeExecFailed, ErrCodeCatalogLoad:
		return KindConnectionFailed
	case ErrCodeTimeout:
		return KindTimeout
	default:
		return KindConfiguration
	}
}

// Severity indicates error severity.
type Severity int

const (
	SeverityWarning  Severity = iota // Recoverable, operation may continue
	SeverityError                    // Operation failed, but system is healthy
	SeverityCritical                 // System may be in degraded state
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a structured error with code, context, and optional cause.
type Error struct {
	Code     Code
	Message  string
	Severity Severity

	// Context
	Fields map[string]interface{}

	// Error chain
	Cause error

	// Debug information
	Stack  []Frame
	Time   time.Time
	OpName string // Operation that failed (e.g., "Pool.Acquire", "Jet.Parse")
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder

	buf.WriteString(e.Code.String())
	buf.WriteString(": ")
	buf.WriteString(e.Message)

	if e.Cause != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}

	return buf.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the engine taxonomy entry for this error.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// Format implements fmt.Formatter for detailed output.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s [%s] %s (%s): %s\n",
				e.Time.Format(time.RFC3339),
				e.Severity,
				e.Code.String(),
				e.Kind(),
				e.Message)

			if e.OpName != "" {
				fmt.Fprintf(f, "  Operation: %s\n", e.OpName)
			}

			if len(e.Fields) > 0 {
				fmt.Fprintf(f, "  Context:\n")
				for k, v := range e.Fields {
					fmt.Fprintf(f, "    %s: %v\n", k, v)
				}
			}

			if e.Cause != nil {
				fmt.Fprintf(f, "  Caused by: %v\n", e.Cause)
			}

			if len(e.Stack) > 0 {
				fmt.Fprintf(f, "  Stack:\n")
				for _, frame := range e.Stack {
					fmt.Fprintf(f, "    %s\n      %s:%d\n",
						frame.Function, frame.File, frame.Line)
				}
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// Builder helps construct errors fluently.
type Builder struct {
	code     Code
	message  string
	severity Severity
	cause    error
	fields   map[string]interface{}
	op       string
	stack    bool
}

// New starts building a new error with the given code.
func New(code Code, message string) *Builder {
	return &Builder{
		code:     code,
		message:  message,
		severity: SeverityError,
	}
}

// Newf starts building a new error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Builder {
	return &Builder{
		code:     code,
		message:  fmt.Sprintf(format, args...),
		severity: SeverityError,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, message string) *Builder {
	return &Builder{
		code:     code,
		message:  message,
		severity: SeverityError,
		cause:    cause,
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, code Code, format string, args ...interface{}) *Builder {
	return &Builder{
		code:     code,
		message:  fmt.Sprintf(format, args...),
		severity: SeverityError,
		cause:    cause,
	}
}

// Warning sets severity to warning.
func (b *Builder) Warning() *Builder {
	b.severity = SeverityWarning
	return b
}

// Critical sets severity to critical.
func (b *Builder) Critical() *Builder {
	b.severity = SeverityCritical
	return b
}

// WithField adds a context field.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[key] = value
	return b
}

// WithOp sets the operation name.
func (b *Builder) WithOp(op string) *Builder {
	b.op = op
	return b
}

// WithStack captures a stack trace.
func (b *Builder) WithStack() *Builder {
	b.stack = true
	return b
}

// Build creates the Error.
func (b *Builder) Build() *Error {
	e := &Error{
		Code:     b.code,
		Message:  b.message,
		Severity: b.severity,
		Cause:    b.cause,
		Fields:   b.fields,
		OpName:   b.op,
		Time:     time.Now(),
	}

	if b.stack {
		e.Stack = captureStack(2)
	}

	return e
}

// Err is a shorthand for Build() that returns error interface.
func (b *Builder) Err() error {
	return b.Build()
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	callersFrames := runtime.CallersFrames(pcs)
	for {
		frame, more := callersFrames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			frames = append(frames, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more || len(frames) >= 10 {
			break
		}
	}

	return frames
}

// Helper functions for common error types

// InvalidQuery creates a guard rejection.
func InvalidQuery(code Code, reason string) *Builder {
	return New(code, reason).
		WithField("reason", reason).
		WithOp("Guard.Validate")
}

// Unsupported creates an error for SQL the Jet evaluator cannot decompose.
func Unsupported(construct string) *Builder {
	return Newf(ErrCodeUnsupportedQuery, "unsupported query construct: %s", construct).
		WithField("construct", construct)
}

// TableNotFound creates a missing table error carrying the known tables.
func TableNotFound(table string, known, suggestions []string) *Builder {
	return Newf(ErrCodeTableNotFound, "table not found: %s", table).
		WithField("table", table).
		WithField("known_tables", known).
		WithField("suggestions", suggestions)
}

// ColumnNotFound creates a missing column error. table may be empty when
// the backend does not say which table it searched.
func ColumnNotFound(table, column string, known []string) *Builder {
	msg := "column " + column + " not found"
	if table != "" {
		msg += " in table " + table
	}
	return New(ErrCodeColumnNotFound, msg).
		WithField("table", table).
		WithField("column", column).
		WithField("known_columns", known)
}

// Timeout creates a timeout error.
func Timeout(operation string, cause error) *Builder {
	return Wrapf(cause, ErrCodeTimeout, "operation %s timed out", operation).
		WithField("operation", operation)
}

// Internal creates an internal error (for unexpected conditions).
func Internal(msg string) *Builder {
	return New(ErrCodeInternal, msg).Critical().WithStack()
}

// Extraction helpers

// GetCode extracts the error code from an error, or returns ErrCodeInternal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// KindOf returns the taxonomy entry of err. Errors not built by this
// package are reported as configuration failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	return GetCode(err).Kind()
}

// GetFields extracts context fields from an error.
func GetFields(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsKind checks if an error belongs to a taxonomy entry.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status code the HTTP surface reports.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNone:
		return 200
	case KindInvalidQuery, KindUnsupportedQuery:
		return 400
	case KindTableNotFound, KindColumnNotFound:
		return 404
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// Standard library compatibility

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
