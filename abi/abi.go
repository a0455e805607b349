// Package abi implements the classification half of the calling-convention
// engine (spec §4.5): given a function's parameter and return shapes, Target
// classifies each into a disposition (register, byval, coerced, split,
// ignored) following one of three target-specific rule sets. The shared
// call-site template spec §4.5 describes — inserting the sret pointer and
// byval copies a ClassifiedSignature calls for — is implemented in
// lower.LowerFunction, which is the package that already holds the
// instruction-construction primitives (ssa.NewValue, block/instruction
// lists) that template needs; abi itself stays a pure classifier with no
// ssa dependency, which is also why lower imports abi and not the reverse.
package abi

import (
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
)

// Class is the register class a flattened aggregate member occupies.
// TVM's own lexer (tvmtoken) has no floating-point literal syntax, so every
// member this toolchain ever classifies is ClassInteger; ClassSSE exists so
// the classification rules read the same as System V's own terminology and
// so a future float-literal extension has somewhere to plug in, not because
// any code path here produces it today.
type Class int

const (
	ClassInteger Class = iota
	ClassSSE
	ClassMemory
	ClassNone
)

// Member is one flattened (offset, class, size, alignment) slice of an
// aggregate, the same shape lower.AggregateLayout's members carry — kept as
// a separate, lower-level type here so this package never needs to import
// lower (lower imports abi to delegate call/return classification, not the
// other way around).
type Member struct {
	Offset int
	Size   int
	Align  int
	Class  Class
}

// Param describes one value being classified: a plain register-sized
// scalar (IsAggregate false) or a flattened aggregate.
type Param struct {
	Size        int
	Align       int
	IsAggregate bool
	IsPointer   bool
	Members     []Member
}

// Mode is one of the five dispositions of spec §4.5.
type Mode string

const (
	Default Mode = "default"
	Byval   Mode = "byval"
	Inreg   Mode = "inreg"
	Ignore  Mode = "ignore"
	Split   Mode = "split"
)

// Disposition is how one value crosses a call boundary.
type Disposition struct {
	Mode Mode

	// CoerceSize is nonzero when the value travels through a synthetic
	// coercion type of this many bytes (a bitcast-through-memory), per
	// spec's "coerce_to".
	CoerceSize int

	// Expand is true when a struct coercion type is passed as its
	// individual fields rather than as one aggregate register value.
	Expand       bool
	CoerceFields []int

	// Alignment is the byval copy's required alignment; 0 means "use the
	// value's own alignment".
	Alignment int

	// SplitHeadBytes is ARM's split mode: this many leading bytes travel
	// in registers, the remainder travels byval.
	SplitHeadBytes int
}

// ClassifiedSignature is the result of classifying one function type.
type ClassifiedSignature struct {
	Params []Disposition
	Return Disposition
	Sret   bool
}

// Target classifies function signatures for one platform ABI.
type Target interface {
	Name() string
	Classify(params []Param, ret Param) (ClassifiedSignature, error)
}

// Select maps a target triple and TVM calling-convention name ("" for the
// platform default, "c" for cc_c) to a Target implementation, per spec's
// select_cc(triple, cc). Unsupported combinations are a target error naming
// the triple and convention (spec §7's TargetError taxonomy entry).
//
// Target implementations live in sibling packages (abi/sysv, abi/cdecl,
// abi/armeabi) rather than this one to avoid a package that imports every
// platform unconditionally; callers wire in the targets they need.
type Selector func(triple, cc string) (Target, bool)

var selectors []Selector

// Register adds a Selector to the global registry. Platform packages call
// this from an init func, the same self-registration idiom the teacher's
// own keyword table uses for the TVM lexer.
func Register(s Selector) {
	selectors = append(selectors, s)
}

func Select(triple, cc string) (Target, error) {
	for _, s := range selectors {
		if t, ok := s(triple, cc); ok {
			return t, nil
		}
	}

	return nil, diag.New(diag.TargetError, position.Pos{}, "unsupported target triple %q with calling convention %q", triple, cc)
}
