// Package errors defines the closed set of error kinds produced by the
// compiler and executor stages. Each kind is a stable, named error class;
// instances carry a human-readable message plus free-form context (line,
// column, token, field, ...) the way gopkg.in/src-d/go-errors.v1's Kind/New
// pattern is used throughout the analyzer stack this package is modeled on.
package errors

import (
	pkgerrors "github.com/pkg/errors"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// Kind identifies one of the closed error classes from the error taxonomy.
type Kind struct {
	name string
	kind *goerrors.Kind
}

// Name returns the stable kind name (e.g. "LexerError").
func (k *Kind) Name() string { return k.name }

// New formats a new *Error of this kind with the given message arguments.
func (k *Kind) New(args ...interface{}) *Error {
	return &Error{kind: k, cause: k.kind.New(args...), context: map[string]interface{}{}}
}

// Is reports whether err (or any error it wraps) is of this kind.
func (k *Kind) Is(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.kind == k {
			return true
		}
		if k.kind.Is(err) {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var (
	Lexer      = newKind("LexerError", "lexer error: %s")
	Parser     = newKind("ParserError", "parser error: %s")
	Semantic   = newKind("SemanticError", "semantic error: %s")
	TypeCheck  = newKind("TypeCheckError", "type error: %s")
	Validation = newKind("ValidationError", "validation error: %s")
	Execution  = newKind("ExecutionError", "execution error: %s")
	Browser    = newKind("BrowserError", "browser error: %s")
	Network    = newKind("NetworkError", "network error: %s")
	Timeout    = newKind("TimeoutError", "operation timed out: %s")
	Resource   = newKind("ResourceError", "resource error: %s")
	Security   = newKind("SecurityError", "security error: %s")
	Permission = newKind("PermissionError", "permission denied: %s")
	RateLimit  = newKind("RateLimitError", "rate limited: %s")
	Cache      = newKind("CacheError", "cache error: %s")
)

func newKind(name, format string) *Kind {
	return &Kind{name: name, kind: goerrors.NewKind(format)}
}

// Error is a single instance of a Kind, carrying recoverability and a
// free-form context map (line/column/token/field/expected/actual/...).
type Error struct {
	kind        *Kind
	cause       error
	recoverable bool
	context     map[string]interface{}
}

func (e *Error) Error() string {
	return e.cause.Error()
}

// Unwrap lets errors.Is/As see through to the underlying go-errors value.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's stable kind.
func (e *Error) Kind() *Kind { return e.kind }

// Recoverable reports whether callers may retry or continue past this error.
func (e *Error) Recoverable() bool { return e.recoverable }

// WithContext attaches (or overwrites) a context key and returns the error
// for chaining, e.g. Lexer.New(msg).WithContext("line", 4).
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.context[key] = value
	return e
}

// WithRecoverable marks the error as recoverable and returns it for chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.recoverable = recoverable
	return e
}

// Context returns the free-form context mapping (line/column/token/field/...).
func (e *Error) Context() map[string]interface{} {
	return e.context
}

// At is a convenience constructor used by the lexer and parser to attach a
// source position's line/column to a freshly-built error.
func At(k *Kind, line, column int, args ...interface{}) *Error {
	return k.New(args...).WithContext("line", line).WithContext("column", column)
}

// Wrap builds a new Error of kind k around a collaborator error (a browser,
// proxy, or I/O failure the engine does not itself raise), using
// github.com/pkg/errors to attach a stack trace to the wrapped cause so the
// originating call site survives past the Kind/context layer above.
func Wrap(k *Kind, err error, message string) *Error {
	wrapped := pkgerrors.Wrap(err, message)
	return k.New("%s", wrapped).WithContext("cause", err.Error())
}
