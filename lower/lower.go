// Package lower implements the aggregate-lowering pass (spec §4.4): LowerType
// turns a high-level TVM type into a LoweredType carrying both a
// register-sized type for use as a parameter/return and a full
// AggregateLayout describing its flattened member offsets; LowerFunction (in
// rewrite.go) rewrites a function body against that layout information and
// the calling-convention engine's classification, splicing in the sret
// return slot and byval argument copies spec §4.5's call-site template
// describes. ssa.Value carries a function Global's ordered block list and
// each block's ordered instruction list (ssa.Value.Blocks / .Insts), so the
// rewrite walks bodies the same way the source builder resolved them.
//
// This pass does not flatten composite construction (struct_v/array_v/
// union_v) into field-by-field stores, nor turn element_ptr/struct_ep field
// indices into byte-offset pointer arithmetic: nothing in tvmast's grammar
// or the S1–S6 scenarios exercises either construct, and attempting it
// without a concrete grammar to ground it in would be invention rather than
// a lowering of something real. See DESIGN.md for the accounting.
package lower

import (
	"strconv"
	"strings"

	"github.com/tvmlang/tvm/abi"
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/ssa"
)

// TargetCallback is the external seam spec §4.4 calls "the target callback
// contract". The aggregate pass never inspects the target directly; every
// size, alignment, or padding-type fact it needs comes through here.
type TargetCallback interface {
	// TypeSizeAlignment reports the size and alignment, in bytes, of a
	// register type: a primitive, pointer, or block type. Lowering never
	// calls this for a struct/union/array; those are computed recursively
	// from their members instead.
	TypeSizeAlignment(t *ssa.Value) (size, align int, err error)

	// TypeFromSize manufactures a padding/coercion type of exactly this
	// many bytes, used when a lowered aggregate needs a synthetic register
	// type to travel through (the calling-convention engine's coerce_to).
	TypeFromSize(size int) *ssa.Value

	// TypeFromAlignment manufactures a type whose natural alignment is
	// exactly this many bytes, used for synthesizing padding members.
	TypeFromAlignment(align int) *ssa.Value

	// ByteShift returns the bit shift amount for the byte at the given
	// offset within a register, for endian-aware sub-register extraction.
	ByteShift(offset int) int
}

// Options toggles the union- and array-lowering behavior spec §4.4
// describes as flag-controlled.
type Options struct {
	// RemoveUnions collapses a union type to its largest, most-aligned
	// member rather than keeping it as a tagged multi-member layout.
	RemoveUnions bool

	// MemcpyToBytes lowers an array's register representation to a flat
	// byte buffer of the right size/alignment instead of leaving it
	// un-representable in a register.
	MemcpyToBytes bool
}

// Member is one flattened (offset, type, size, alignment) slice of an
// aggregate, per spec §4.4's "ordered list of flat members".
type Member struct {
	Offset int
	Size   int
	Align  int
	Type   *ssa.Value
}

// AggregateLayout is the size, alignment, and flattened member list spec
// §4.4 says every LoweredType carries alongside its register type.
type AggregateLayout struct {
	Size    int
	Align   int
	Members []Member
}

// LoweredType is a high-level type's register-sized representative
// (usable directly as a parameter or return type when it fits a single
// register) plus its full layout (always present, even for types that do
// fit a register, since the calling-convention engine needs it either
// way).
type LoweredType struct {
	Register  *ssa.Value
	Layout    AggregateLayout
	Aggregate bool
}

// Lowerer computes LoweredTypes, memoized per source type so a recursive or
// widely shared type is only ever computed once.
type Lowerer struct {
	cb    TargetCallback
	opts  Options
	cache map[*ssa.Value]*LoweredType
}

func New(cb TargetCallback, opts Options) *Lowerer {
	return &Lowerer{cb: cb, opts: opts, cache: map[*ssa.Value]*LoweredType{}}
}

// LowerType implements the recursive rules of spec §4.4's "Type lowering".
func (l *Lowerer) LowerType(t *ssa.Value) (*LoweredType, error) {
	if t == nil {
		return nil, diag.New(diag.SemanticError, position.Pos{}, "cannot lower a nil type")
	}

	if cached, ok := l.cache[t]; ok {
		return cached, nil
	}

	// placeholder breaks infinite recursion for a recursive type that
	// refers to itself (e.g. a linked-list node containing a pointer back
	// to its own type); the pointer case below never needs the member
	// layout of what it points to, so a half-filled entry is safe to see.
	placeholder := &LoweredType{}
	l.cache[t] = placeholder

	lt, err := l.lowerType(t)
	if err != nil {
		delete(l.cache, t)
		return nil, err
	}

	*placeholder = *lt
	l.cache[t] = placeholder

	return placeholder, nil
}

func (l *Lowerer) lowerType(t *ssa.Value) (*LoweredType, error) {
	switch t.Tag {
	case "struct":
		return l.lowerStruct(t)
	case "union":
		return l.lowerUnion(t)
	case "array":
		return l.lowerArray(t)
	default:
		return l.lowerScalar(t)
	}
}

// lowerScalar handles primitives, pointers, blocks, and the empty type:
// spec §4.4 says these lower to themselves, with size/alignment from the
// target callback.
func (l *Lowerer) lowerScalar(t *ssa.Value) (*LoweredType, error) {
	size, align, err := l.cb.TypeSizeAlignment(t)
	if err != nil {
		return nil, err
	}

	return &LoweredType{
		Register: t,
		Layout: AggregateLayout{
			Size:  size,
			Align: align,
			Members: []Member{
				{Offset: 0, Size: size, Align: align, Type: t},
			},
		},
	}, nil
}

// lowerStruct concatenates member layouts, padding each member up to its
// own alignment and the struct's final size up to its own alignment.
func (l *Lowerer) lowerStruct(t *ssa.Value) (*LoweredType, error) {
	var members []Member

	offset, maxAlign := 0, 1

	for i := 0; i < t.NumOperands(); i++ {
		fieldType := t.Operand(i)

		field, err := l.LowerType(fieldType)
		if err != nil {
			return nil, err
		}

		offset = alignUp(offset, field.Layout.Align)

		for _, m := range field.Layout.Members {
			members = append(members, Member{Offset: offset + m.Offset, Size: m.Size, Align: m.Align, Type: m.Type})
		}

		offset += field.Layout.Size
		if field.Layout.Align > maxAlign {
			maxAlign = field.Layout.Align
		}
	}

	size := alignUp(offset, maxAlign)

	return &LoweredType{
		Aggregate: true,
		Layout:    AggregateLayout{Size: size, Align: maxAlign, Members: members},
	}, nil
}

// lowerUnion collapses to the largest, most-aligned member when
// RemoveUnions is set, per spec §4.4. Without the flag, the union still
// needs a concrete size and alignment to be useful to anything downstream,
// so it is computed the same way; RemoveUnions instead controls whether
// the union's own member list is flattened to that single representative
// member (true) or kept as every member's own layout overlaid at offset 0
// (false), which the calling-convention classifier can still use to decide
// between register classes.
func (l *Lowerer) lowerUnion(t *ssa.Value) (*LoweredType, error) {
	if t.NumOperands() == 0 {
		return nil, diag.New(diag.SemanticError, position.Pos{}, "union type has no members")
	}

	var (
		best      *LoweredType
		allLayout []Member
	)

	for i := 0; i < t.NumOperands(); i++ {
		member, err := l.LowerType(t.Operand(i))
		if err != nil {
			return nil, err
		}

		if best == nil || isLarger(member.Layout, best.Layout) {
			best = member
		}

		allLayout = append(allLayout, Member{Offset: 0, Size: member.Layout.Size, Align: member.Layout.Align, Type: member.Register})
	}

	if l.opts.RemoveUnions {
		return &LoweredType{
			Register:  best.Register,
			Aggregate: !isScalar(best),
			Layout:    AggregateLayout{Size: best.Layout.Size, Align: best.Layout.Align, Members: best.Layout.Members},
		}, nil
	}

	return &LoweredType{
		Aggregate: true,
		Layout:    AggregateLayout{Size: best.Layout.Size, Align: best.Layout.Align, Members: allLayout},
	}, nil
}

func isLarger(a, b AggregateLayout) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}

	return a.Align > b.Align
}

func isScalar(lt *LoweredType) bool {
	return !lt.Aggregate && lt.Register != nil
}

// lowerArray repeats the element layout count times. Operand 0 is the
// element type, operand 1 the element count as an interned integer
// literal (tvmbuild's "lit:N" convention).
func (l *Lowerer) lowerArray(t *ssa.Value) (*LoweredType, error) {
	if t.NumOperands() != 2 {
		return nil, diag.New(diag.SemanticError, position.Pos{}, "array type expects 2 operands, got %d", t.NumOperands())
	}

	elem, err := l.LowerType(t.Operand(0))
	if err != nil {
		return nil, err
	}

	count, err := litInt(t.Operand(1))
	if err != nil {
		return nil, err
	}

	stride := alignUp(elem.Layout.Size, elem.Layout.Align)

	var members []Member
	for i := 0; i < count; i++ {
		base := i * stride
		for _, m := range elem.Layout.Members {
			members = append(members, Member{Offset: base + m.Offset, Size: m.Size, Align: m.Align, Type: m.Type})
		}
	}

	size := stride * count
	layout := AggregateLayout{Size: size, Align: elem.Layout.Align, Members: members}

	if l.opts.MemcpyToBytes {
		return &LoweredType{
			Register:  l.cb.TypeFromSize(size),
			Aggregate: true,
			Layout:    layout,
		}, nil
	}

	return &LoweredType{Aggregate: true, Layout: layout}, nil
}

func litInt(v *ssa.Value) (int, error) {
	if !strings.HasPrefix(v.Tag, "lit:") {
		return 0, diag.New(diag.SemanticError, position.Pos{}, "expected an integer literal for an array count, got %q", v.Tag)
	}

	n, err := strconv.Atoi(strings.TrimPrefix(v.Tag, "lit:"))
	if err != nil {
		return 0, diag.Wrap(diag.SemanticError, position.Pos{}, err, "invalid array count literal %q", v.Tag)
	}

	return n, nil
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}

	return (n + align - 1) / align * align
}

// ToABIParam converts a LoweredType into the abi package's own, deliberately
// separate Param/Member shape, so lower can delegate call/return
// classification without abi needing to import lower (see DESIGN.md).
func ToABIParam(lt *LoweredType) abi.Param {
	p := abi.Param{
		Size:        lt.Layout.Size,
		Align:       lt.Layout.Align,
		IsAggregate: lt.Aggregate,
	}

	for _, m := range lt.Layout.Members {
		p.Members = append(p.Members, abi.Member{
			Offset: m.Offset,
			Size:   m.Size,
			Align:  m.Align,
			Class:  abi.ClassInteger,
		})
	}

	return p
}

// ClassifySignature lowers every parameter type and the result type of a
// TVM function-type value and delegates the classification to target. ft is
// the interned "function"/"function_<cc>" value tvmbuild produces: its
// first NumOperands()-1 operands are parameter types, the last is the
// result type.
func (l *Lowerer) ClassifySignature(ft *ssa.Value, target abi.Target) (abi.ClassifiedSignature, error) {
	n := ft.NumOperands()
	if n == 0 {
		return abi.ClassifiedSignature{}, diag.New(diag.SemanticError, position.Pos{}, "function type has no result type")
	}

	params := make([]abi.Param, n-1)

	for i := 0; i < n-1; i++ {
		lt, err := l.LowerType(ft.Operand(i))
		if err != nil {
			return abi.ClassifiedSignature{}, err
		}

		params[i] = ToABIParam(lt)
	}

	ret, err := l.LowerType(ft.Operand(n - 1))
	if err != nil {
		return abi.ClassifiedSignature{}, err
	}

	return target.Classify(params, ToABIParam(ret))
}
