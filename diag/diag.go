// Package diag implements the single diagnostic shape shared by every stage
// of the toolchain (spec §7): one Error struct tagged with a Kind, carrying
// a physical or logical location and an optional wrapped cause. No kind is
// recovered inside the core; callers only catch at module boundaries (the
// CLI, or a test).
package diag

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tvmlang/tvm/internal/position"
)

// Kind tags which stage of the pipeline raised an Error.
type Kind string

const (
	LexError      Kind = "lex"
	ParseError    Kind = "parse"
	SemanticError Kind = "semantic"
	TargetError   Kind = "target"
	BackendError  Kind = "backend"
	JITError      Kind = "jit"
)

// Error is the one diagnostic shape used throughout the toolchain.
type Error struct {
	Kind    Kind
	Pos     position.Pos
	Logical position.Scope
	Message string
	Cause   error
}

// New builds a bare Error with no cause.
func New(kind Kind, pos position.Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that records cause (annotated with a stack by
// pkg/errors.WithStack) as its underlying reason, reachable through Unwrap
// so errors.Is/errors.As still see the original failure.
func Wrap(kind Kind, pos position.Pos, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// WithScope attaches a logical location (module/function/block chain) to an
// existing Error and returns it, for chaining at call sites that know their
// own scope but not the original position.
func (e *Error) WithScope(scope position.Scope) *Error {
	e.Logical = scope
	return e
}

func (e *Error) Error() string {
	loc := e.Pos.String()
	if len(e.Logical) > 0 {
		loc = loc + " in " + e.Logical.String()
	}

	msg := fmt.Sprintf("%s: %s: %s", loc, e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, letting
// callers write errors.Is(err, diag.New(diag.LexError, position.Pos{}, ""))
// to test an error's kind against a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}
