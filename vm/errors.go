package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// Error tags. Each recoverable error carries one of these symbols, which is
// what with-handler matches on.
const (
	TagTypeError     = "type-error"
	TagArityError    = "arity-error"
	TagDivZero       = "div0"
	TagOverflow      = "overflow"
	TagUndefined     = "undefined"
	TagRange         = "range-error"
	TagImmutable     = "immutable"
	TagResource      = "resource"
	TagUncaughtThrow = "uncaught-throw"
	TagSyntax        = "syntax-error"
	TagIO            = "io-error"
	TagStackOverflow = "stack-overflow"
	TagUser          = "error"
	TagMacroDepth    = "macro-depth"
	TagIllegal       = "illegal-instruction"
)

// Error is a recoverable Lisp-level error. It is resolved through the
// handler mechanism when a matching handler is installed and returned to
// the top level otherwise.
type Error struct {
	Tag       string
	Message   string
	Value     Cell   // offending datum, Undef when there is none
	ValueText string // printed form of Value at signal time
	Context   string // file and line of the active load, if any
	Trace     []string

	reported bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.ValueText != "" {
		b.WriteString(": ")
		b.WriteString(e.ValueText)
	}
	return b.String()
}

// Is lets errors.Is match errors by tag.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Tag == e.Tag && t.Message == ""
}

// ErrorTag returns a sentinel matching any *Error with the given tag under
// errors.Is.
func ErrorTag(tag string) error {
	return &Error{Tag: tag}
}

// FatalError is an unrecoverable condition, such as pool exhaustion after a
// collection. It is raised with panic and must terminate the process.
type FatalError struct {
	Message string
	Detail  string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Detail == "" {
		return "fatal: " + e.Message
	}
	return fmt.Sprintf("fatal: %s (%s)", e.Message, e.Detail)
}

// ExitError is returned by Eval when the program asks the host to exit.
type ExitError struct {
	Code int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// ErrNoCompiler is returned when code must be compiled but no compiler has
// been installed.
var ErrNoCompiler = errors.New("vm: no compiler installed")

// ErrNoReader is returned when read is used but no reader has been
// installed.
var ErrNoReader = errors.New("vm: no reader installed")

// transfer is a non-local exit that has to cross a nested interpreter
// activation. The outer activation resumes it.
type transfer struct {
	target  int  // index into the catch stack
	value   Cell // thrown value, or the error datum for handlers
	handler bool // call the frame's handler with value
}

func (t *transfer) Error() string {
	return "non-local exit in progress"
}

// ---------------------------------------------------------------------------
// Raising errors
// ---------------------------------------------------------------------------

// newError builds an error with the offending value rendered immediately,
// since the value may be collected before the error is reported.
func (m *Machine) newError(tag string, val Cell, format string, args ...any) *Error {
	e := &Error{
		Tag:     tag,
		Message: fmt.Sprintf(format, args...),
		Value:   val,
		Context: m.loadContext(),
	}
	if val != Undef {
		e.ValueText = m.Sprint(val, true)
	}
	return e
}

func (m *Machine) typeError(val Cell, prim string, expected string) *Error {
	return m.newError(TagTypeError, val, "%s: expected %s", prim, expected)
}

func (m *Machine) arityError(name string, got int) *Error {
	return m.newError(TagArityError, Undef, "%s: wrong number of arguments (%d)", name, got)
}

func (m *Machine) immutableError(val Cell, prim string) *Error {
	return m.newError(TagImmutable, val, "%s: immutable object", prim)
}

func (m *Machine) rangeError(val Cell, prim string) *Error {
	return m.newError(TagRange, val, "%s: index out of range", prim)
}

// Errorf creates a user-level error with the given tag. It is used by the
// compiler and reader.
func (m *Machine) Errorf(tag string, val Cell, format string, args ...any) *Error {
	return m.newError(tag, val, format, args...)
}
