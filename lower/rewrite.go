package lower

import (
	"strings"

	"github.com/tvmlang/tvm/abi"
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/ssa"
)

// LoweredFunction is a function body after the aggregate-lowering pass and
// the calling-convention engine's shared call-site template (spec §4.4,
// §4.5) have both run over it: its parameter list carries a synthesized
// sret pointer when the return is classified byval, every call site it
// contains has its byval argument copies (and, for a byval return, its
// caller-side sret slot) spliced in ahead of it, and every `return` is
// rewritten into a store through the sret slot when the function itself
// returns byval. Parameters are passed through as they are: aggregate
// parameters are not reconstructed on entry, and coerce dispositions are
// not rewritten.
type LoweredFunction struct {
	Params []*ssa.Value
	Blocks []*ssa.Value
	Sig    abi.ClassifiedSignature
}

// LowerFunction rewrites fn's body for target. mod resolves a direct,
// bareword-named call's callee type (tvmbuild represents "call g %x" as an
// Instruction value tagged "g", not "call", when g names a declared
// function — see tvmbuild.resolveCall); an indirect call through a value
// carries its callee's function type on operand 0 directly and needs no
// lookup.
func (l *Lowerer) LowerFunction(mod *ssa.Module, fn *ssa.Value, target abi.Target) (*LoweredFunction, error) {
	if fn.Blocks == nil {
		return nil, diag.New(diag.SemanticError, position.Pos{}, "cannot lower a declaration-only function")
	}

	sig, err := l.ClassifySignature(fn.Type, target)
	if err != nil {
		return nil, err
	}

	r := &rewriter{l: l, target: target, mod: mod}

	var sretParam *ssa.Value

	params := make([]*ssa.Value, 0, fn.NumOperands()+1)

	if sig.Return.Mode == abi.Byval {
		sretParam = ssa.NewValue(ssa.Parameter, "sret", nil, 0)
		params = append(params, sretParam)
	}

	for i := 0; i < fn.NumOperands(); i++ {
		params = append(params, fn.Operand(i))
	}

	blocks := make([]*ssa.Value, len(fn.Blocks))
	for i, blk := range fn.Blocks {
		blocks[i] = ssa.NewValue(ssa.Block, blk.Tag, blk.Type, 0)
	}

	// Retarget every existing goto/cond_br/phi edge that names an old block
	// at its freshly built replacement before any instruction is rewritten,
	// the same replace_uses primitive spec §8's S5 scenario exercises.
	for i, blk := range fn.Blocks {
		ssa.ReplaceUses(blk, blocks[i])
	}

	for i, blk := range fn.Blocks {
		insts := make([]*ssa.Value, 0, len(blk.Insts))

		for _, inst := range blk.Insts {
			rewritten, err := r.rewriteInst(inst, sig, sretParam)
			if err != nil {
				return nil, err
			}

			insts = append(insts, rewritten...)
		}

		blocks[i].Insts = insts
	}

	return &LoweredFunction{Params: params, Blocks: blocks, Sig: sig}, nil
}

// rewriter carries the state the body rewrite needs beyond what a single
// instruction sees: the lowerer (for LowerType/cb access), the target ABI
// every call site is reclassified against, and the module a direct
// bareword call's callee is looked up in.
type rewriter struct {
	l      *Lowerer
	target abi.Target
	mod    *ssa.Module
}

// newInstruction allocates a fresh Instruction-category value with its
// operands bound in order, never shared — the rewrite pass introduces new
// instructions (sret stores, byval copies) that must each be their own
// node even when two call sites produce structurally identical ones.
func newInstruction(tag string, typ *ssa.Value, operands []*ssa.Value) *ssa.Value {
	v := ssa.NewValue(ssa.Instruction, tag, typ, len(operands))
	for i, op := range operands {
		v.SetOperand(i, op)
	}

	return v
}

func (r *rewriter) rewriteInst(inst *ssa.Value, sig abi.ClassifiedSignature, sretParam *ssa.Value) ([]*ssa.Value, error) {
	if inst.Category != ssa.Instruction {
		return []*ssa.Value{inst}, nil
	}

	switch {
	case inst.Tag == "alloca":
		if err := r.rewriteAlloca(inst); err != nil {
			return nil, err
		}

		return []*ssa.Value{inst}, nil

	case inst.Tag == "return":
		return r.rewriteReturn(inst, sig, sretParam)

	case inst.Tag == "call" || r.calleeType(inst) != nil:
		return r.rewriteCall(inst)

	default:
		return []*ssa.Value{inst}, nil
	}
}

// calleeType resolves a direct, bareword-named call's callee function type
// by looking up inst's own tag as a module symbol. It returns nil for
// everything else (an indirect "call", or any non-call instruction), so
// callers can use it as a cheap "is this a direct call" test.
func (r *rewriter) calleeType(inst *ssa.Value) *ssa.Value {
	if r.mod == nil {
		return nil
	}

	v := r.mod.Lookup(inst.Tag)
	if v == nil || v.Category != ssa.Global || v.Type == nil || !strings.HasPrefix(v.Type.Tag, "function") {
		return nil
	}

	return v.Type
}

// rewriteAlloca mutates an aggregate alloca's type operand in place to the
// register-sized byte buffer its layout requires (spec §4.4: "composite
// construction ... becomes either a sequence of stores into an allocated
// slot ... or a scalar identity"). A scalar alloca is untouched. Mutating
// in place rather than replacing the node is safe here: alloca's only
// observable property to every load/store/element_ptr that already
// references it is its identity as a memory location, not its operand
// list, so no user needs redirecting.
func (r *rewriter) rewriteAlloca(inst *ssa.Value) error {
	if inst.NumOperands() == 0 {
		return nil
	}

	t := inst.Operand(0)
	if t == nil {
		return nil
	}

	lt, err := r.l.LowerType(t)
	if err != nil {
		return err
	}

	if !lt.Aggregate {
		return nil
	}

	inst.SetOperand(0, r.l.cb.TypeFromSize(lt.Layout.Size))

	return nil
}

// rewriteReturn implements the sret half of the call-site template at the
// function's own exit: when the function's classified return is byval, the
// value the source returns is stored through the synthesized sret pointer
// instead of traveling back in a register.
func (r *rewriter) rewriteReturn(inst *ssa.Value, sig abi.ClassifiedSignature, sretParam *ssa.Value) ([]*ssa.Value, error) {
	if sig.Return.Mode != abi.Byval || sretParam == nil || inst.NumOperands() == 0 {
		return []*ssa.Value{inst}, nil
	}

	store := newInstruction("store", nil, []*ssa.Value{sretParam, inst.Operand(0)})
	ret := newInstruction("return", nil, nil)

	ssa.ReplaceUses(inst, ret)

	return []*ssa.Value{store, ret}, nil
}

// rewriteCall implements spec §4.5's shared call-site template: classify
// the callee, insert an sret pointer ahead of the argument list when its
// return is byval, and replace each byval argument with a pointer to a
// caller-allocated copy (alloca + store) ahead of the call. A call whose
// callee classifies entirely as default/inreg dispositions is left
// untouched.
func (r *rewriter) rewriteCall(inst *ssa.Value) ([]*ssa.Value, error) {
	ft := r.calleeType(inst)

	argOffset := 0
	if inst.Tag == "call" {
		if inst.NumOperands() == 0 {
			return []*ssa.Value{inst}, nil
		}

		if inst.Operand(0).Type != nil {
			ft = inst.Operand(0).Type
		}

		argOffset = 1
	}

	if ft == nil || ft.NumOperands() == 0 {
		return []*ssa.Value{inst}, nil
	}

	sig, err := r.l.ClassifySignature(ft, r.target)
	if err != nil {
		return nil, err
	}

	if !needsCallSiteTemplate(sig) {
		return []*ssa.Value{inst}, nil
	}

	var (
		pre        []*ssa.Value
		newArgs    []*ssa.Value
		sretAlloca *ssa.Value
	)

	if sig.Return.Mode == abi.Byval {
		retType, err := r.l.LowerType(ft.Operand(ft.NumOperands() - 1))
		if err != nil {
			return nil, err
		}

		sretAlloca = newInstruction("alloca", r.l.cb.TypeFromSize(retType.Layout.Size), nil)
		pre = append(pre, sretAlloca)
		newArgs = append(newArgs, sretAlloca)
	}

	for i, disp := range sig.Params {
		if argOffset+i >= inst.NumOperands() {
			break
		}

		arg := inst.Operand(argOffset + i)

		switch disp.Mode {
		case abi.Ignore:
			continue
		case abi.Byval:
			paramType, err := r.l.LowerType(ft.Operand(i))
			if err != nil {
				return nil, err
			}

			slot := newInstruction("alloca", r.l.cb.TypeFromSize(paramType.Layout.Size), nil)
			store := newInstruction("store", nil, []*ssa.Value{slot, arg})
			pre = append(pre, slot, store)
			newArgs = append(newArgs, slot)
		default:
			newArgs = append(newArgs, arg)
		}
	}

	var operands []*ssa.Value
	if inst.Tag == "call" {
		operands = append([]*ssa.Value{inst.Operand(0)}, newArgs...)
	} else {
		operands = newArgs
	}

	newCall := newInstruction(inst.Tag, inst.Type, operands)
	out := append(pre, newCall)

	if sretAlloca != nil {
		load := newInstruction("load", inst.Type, []*ssa.Value{sretAlloca})
		ssa.ReplaceUses(inst, load)
		out = append(out, load)
	} else {
		ssa.ReplaceUses(inst, newCall)
	}

	return out, nil
}

func needsCallSiteTemplate(sig abi.ClassifiedSignature) bool {
	if sig.Return.Mode == abi.Byval {
		return true
	}

	for _, p := range sig.Params {
		if p.Mode == abi.Byval || p.Mode == abi.Ignore {
			return true
		}
	}

	return false
}
