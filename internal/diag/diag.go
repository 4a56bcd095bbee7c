// Package diag provides the diagnostic (error) channel threaded through the
// lexer and parser. Every diagnostic is also a Go error (via Error/Unwrap)
// so callers can use errors.Is/errors.As against the underlying oops-coded
// cause in addition to inspecting the structured fields.
package diag

import (
	"fmt"

	"github.com/samber/oops"

	"buildlang/internal/span"
)

// Severity indicates the severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Kind is the diagnostic taxonomy the parser and lexer raise against.
type Kind int

const (
	// Syntax covers any token sequence that does not match the grammar:
	// unexpected tokens, missing closers, missing colons, and the like.
	Syntax Kind = iota
	// IllegalAssignmentTarget marks an assignment or for-loop target that
	// is not a legal target pattern.
	IllegalAssignmentTarget
	// IllegalArgumentOrder marks a call whose arguments violate the
	// positional-then-named-then-splat ordering.
	IllegalArgumentOrder
	// IllegalParameter marks a parameter list with bad ordering,
	// duplicate names, or a bare '*' with no keyword-only tail.
	IllegalParameter
	// DisallowedFeature marks a dialect-gated construct used where the
	// active dialect rejects it: type annotations, return types,
	// lambdas, or non-identifier f-string interpolation. A lone '*'
	// parameter is reported as IllegalParameter instead.
	DisallowedFeature
	// MalformedLoad marks a load(...) statement with zero symbols or a
	// non-string module argument.
	MalformedLoad
	// MalformedFString marks an f-string whose interpolation violates
	// the interpolation grammar (e.g. an empty `{}` fragment).
	MalformedFString
)

var kindNames = map[Kind]string{
	Syntax:                  "Syntax",
	IllegalAssignmentTarget: "IllegalAssignmentTarget",
	IllegalArgumentOrder:    "IllegalArgumentOrder",
	IllegalParameter:        "IllegalParameter",
	DisallowedFeature:       "DisallowedFeature",
	MalformedLoad:           "MalformedLoad",
	MalformedFString:        "MalformedFString",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Diagnostic represents a single fail-fast diagnostic raised during
// lexing or parsing. It implements the error interface so the first
// diagnostic of a failed parse can be returned or wrapped like any other
// Go error.
type Diagnostic struct {
	Kind     Kind      `json:"kind"`
	Code     string    `json:"code"`              // stable error code, e.g. "E3001"
	Severity Severity  `json:"severity"`          // error or warning
	Message  string    `json:"message"`           // human-readable description
	Span     span.Span `json:"span"`              // source location
	TraceID  string    `json:"traceId,omitempty"` // parse-session correlation id
	Hint     string    `json:"hint,omitempty"`

	cause error
}

// Error implements the error interface.
func (d Diagnostic) Error() string { return d.String() }

// Unwrap exposes the underlying oops-coded cause for errors.Is/errors.As.
func (d Diagnostic) Unwrap() error { return d.cause }

// String returns a human-readable representation of the diagnostic.
func (d Diagnostic) String() string {
	prefix := d.Severity.String()
	loc := fmt.Sprintf("%d:%d", d.Span.Start.Line, d.Span.Start.Column)
	msg := fmt.Sprintf("[%s/%s] %s at %s: %s", d.Code, d.Kind, prefix, loc, d.Message)
	if d.Hint != "" {
		msg += " (hint: " + d.Hint + ")"
	}
	return msg
}

// Errorf creates an error-severity diagnostic of the given kind at the
// given span, wrapping an oops-coded cause for structured inspection via
// errors.As.
func Errorf(kind Kind, code string, s span.Span, traceID string, format string, args ...interface{}) Diagnostic {
	msg := fmt.Sprintf(format, args...)
	cause := oops.
		Code(code).
		With("kind", kind.String()).
		With("span", s.String()).
		With("traceId", traceID).
		Errorf("%s", msg)
	return Diagnostic{
		Kind:     kind,
		Code:     code,
		Severity: Error,
		Message:  msg,
		Span:     s,
		TraceID:  traceID,
		cause:    cause,
	}
}

// Warningf creates a warning-severity diagnostic at the given span.
func Warningf(code string, s span.Span, traceID string, format string, args ...interface{}) Diagnostic {
	msg := fmt.Sprintf(format, args...)
	cause := oops.Code(code).With("span", s.String()).With("traceId", traceID).Errorf("%s", msg)
	return Diagnostic{
		Code:     code,
		Severity: Warning,
		Message:  msg,
		Span:     s,
		TraceID:  traceID,
		cause:    cause,
	}
}
