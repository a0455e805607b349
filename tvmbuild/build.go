// Package tvmbuild turns a parsed tvmast.Module into a typed ssa.Module:
// name resolution, block/phi construction, and functional-value interning
// (spec's "module builder" component, §2).
package tvmbuild

import (
	"strings"

	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/ssa"
	"github.com/tvmlang/tvm/tvmast"
)

// scope is the name environment active while resolving one function body or
// recursive-type body: local %values (parameters, instruction/phi results)
// and block labels, both invisible outside their owning element.
type scope struct {
	values map[string]*ssa.Value
	blocks map[string]*ssa.Value
}

func newScope() *scope {
	return &scope{values: map[string]*ssa.Value{}, blocks: map[string]*ssa.Value{}}
}

type builder struct {
	mod *ssa.Module
}

// Build resolves every top-level element of ast into mod's value graph. It
// runs in two passes — declare every symbol first, then resolve bodies — so
// that forward references and mutually/self-recursive types work regardless
// of declaration order.
func Build(ast *tvmast.Module) (*ssa.Module, error) {
	mod := ssa.NewModule(ast.Name)

	type decl struct {
		value *ssa.Value
		el    tvmast.TopLevel
	}

	decls := make([]decl, 0, len(ast.Elements))

	for _, el := range ast.Elements {
		v, err := declareTopLevel(mod, el)
		if err != nil {
			return nil, err
		}

		decls = append(decls, decl{value: v, el: el})
	}

	b := &builder{mod: mod}

	for _, d := range decls {
		if err := b.resolveTopLevel(d.value, d.el); err != nil {
			return nil, err
		}
	}

	return mod, nil
}

func declareTopLevel(mod *ssa.Module, el tvmast.TopLevel) (*ssa.Value, error) {
	switch t := el.(type) {
	case *tvmast.Function:
		return mod.NewFunction(t.Rng.Begin, t.Name, nil, len(t.Type.Params))
	case *tvmast.GlobalVar:
		return mod.NewGlobal(t.Rng.Begin, t.Name, nil)
	case *tvmast.GlobalDefine:
		return mod.NewGlobal(t.Rng.Begin, t.Name, nil)
	case *tvmast.RecursiveType:
		// operand layout: [0:len(Phantom)) phantom bindings,
		// [len(Phantom):len(Phantom)+len(Params)) ordinary params,
		// last slot the body expression.
		return mod.NewRecursiveType(t.Rng.Begin, t.Name, len(t.Phantom)+len(t.Params)+1)
	default:
		return nil, diag.New(diag.SemanticError, position.Pos{}, "unhandled top-level element %T", el)
	}
}

func (b *builder) resolveTopLevel(v *ssa.Value, el tvmast.TopLevel) error {
	switch t := el.(type) {
	case *tvmast.Function:
		return b.resolveFunction(v, t)
	case *tvmast.GlobalVar:
		return b.resolveGlobalVar(v, t)
	case *tvmast.GlobalDefine:
		return b.resolveGlobalDefine(v, t)
	case *tvmast.RecursiveType:
		return b.resolveRecursiveType(v, t)
	default:
		return diag.New(diag.SemanticError, position.Pos{}, "unhandled top-level element %T", el)
	}
}

func (b *builder) resolveGlobalVar(v *ssa.Value, t *tvmast.GlobalVar) error {
	typ, err := b.resolveExpr(nil, t.Type)
	if err != nil {
		return err
	}

	v.Type = typ

	if t.Init != nil {
		init, err := b.resolveExpr(nil, t.Init)
		if err != nil {
			return err
		}

		v.SetOperand(0, init)
	}

	return nil
}

func (b *builder) resolveGlobalDefine(v *ssa.Value, t *tvmast.GlobalDefine) error {
	e, err := b.resolveExpr(nil, t.Expr)
	if err != nil {
		return err
	}

	v.Type = e.Type
	v.SetOperand(0, e)

	return nil
}

func (b *builder) resolveRecursiveType(v *ssa.Value, t *tvmast.RecursiveType) error {
	env := newScope()

	for i, p := range t.Phantom {
		ref, ok := p.Type.(tvmast.NameRef)
		if !ok {
			return diag.New(diag.SemanticError, t.Rng.Begin, "phantom parameter %d of %q has no variable name", i, t.Name)
		}

		pv := ssa.NewValue(ssa.Parameter, ref.Name, b.mod.Metatype, 0)
		v.SetOperand(i, pv)
		env.values[ref.Name] = pv
	}

	for i, p := range t.Params {
		pt, err := b.resolveExpr(env, p.Type)
		if err != nil {
			return err
		}

		pv := ssa.NewValue(ssa.Parameter, p.Name, pt, 0)
		v.SetOperand(len(t.Phantom)+i, pv)

		if p.Name != "" {
			env.values[p.Name] = pv
		}
	}

	body, err := b.resolveExpr(env, t.Body)
	if err != nil {
		return err
	}

	v.Type = b.mod.Metatype
	v.SetOperand(len(t.Phantom)+len(t.Params), body)

	return nil
}

func (b *builder) resolveFunction(v *ssa.Value, fn *tvmast.Function) error {
	ft, err := b.resolveFunctionType(fn.Type)
	if err != nil {
		return err
	}

	v.Type = ft

	if fn.Blocks == nil {
		return nil // declaration only
	}

	env := newScope()

	for i, p := range fn.Type.Params {
		pt, err := b.resolveExpr(nil, p.Type)
		if err != nil {
			return err
		}

		pv := ssa.NewValue(ssa.Parameter, p.Name, pt, 0)
		v.SetOperand(i, pv)

		if p.Name != "" {
			env.values[p.Name] = pv
		}
	}

	blockVals := make([]*ssa.Value, len(fn.Blocks))

	for i, blk := range fn.Blocks {
		bv := ssa.NewValue(ssa.Block, blk.Name, b.mod.Metatype, 0)
		blockVals[i] = bv

		if blk.Name != "" {
			env.blocks[blk.Name] = bv
		}
	}

	for i, blk := range fn.Blocks {
		if err := b.resolveBlock(env, blockVals[i], blk); err != nil {
			return err
		}
	}

	v.Blocks = blockVals

	return nil
}

// resolveBlock resolves every statement of blk in order and records the
// resulting instruction values on bv.Insts, the block's own instruction
// list (spec §4.3: "every instruction belongs to exactly one block"). A
// named statement is also bound into env so later statements/blocks can
// reference it by name.
func (b *builder) resolveBlock(env *scope, bv *ssa.Value, blk *tvmast.Block) error {
	insts := make([]*ssa.Value, 0, len(blk.Stmts))

	for _, stmt := range blk.Stmts {
		var (
			v   *ssa.Value
			err error
		)

		if phi, ok := stmt.Expr.(tvmast.PhiExpr); ok {
			v, err = b.resolvePhi(env, phi)
		} else {
			v, err = b.resolveExpr(env, stmt.Expr)
		}

		if err != nil {
			return err
		}

		if stmt.Name != "" {
			env.values[stmt.Name] = v
		}

		insts = append(insts, v)
	}

	bv.Insts = insts

	return nil
}

func (b *builder) resolvePhi(env *scope, phi tvmast.PhiExpr) (*ssa.Value, error) {
	typ, err := b.resolveExpr(env, phi.Type)
	if err != nil {
		return nil, err
	}

	pv := ssa.NewValue(ssa.Instruction, "phi", typ, len(phi.Nodes)*2)

	for i, node := range phi.Nodes {
		if node.Pred != "" {
			pred, ok := env.blocks[node.Pred]
			if !ok {
				return nil, diag.New(diag.SemanticError, node.Value.Range().Begin, "undefined predecessor block %q in phi", node.Pred)
			}

			pv.SetOperand(i*2, pred)
		}

		val, err := b.resolveExpr(env, node.Value)
		if err != nil {
			return nil, err
		}

		pv.SetOperand(i*2+1, val)
	}

	return pv, nil
}

// resolveFunctionType interns a function type as a functional value whose
// operands are its ordinary parameter types followed by its result type.
// Phantom parameters are compile-time only and do not occupy an operand.
func (b *builder) resolveFunctionType(ft *tvmast.FunctionType) (*ssa.Value, error) {
	operands := make([]*ssa.Value, 0, len(ft.Params)+1)

	for _, p := range ft.Params {
		pt, err := b.resolveExpr(nil, p.Type)
		if err != nil {
			return nil, err
		}

		operands = append(operands, pt)
	}

	result, err := b.resolveExpr(nil, ft.Result)
	if err != nil {
		return nil, err
	}

	operands = append(operands, result)

	tag := "function"
	if ft.CC != "" {
		tag = "function_" + ft.CC
	}

	return b.mod.Intern(tag, b.mod.Metatype, operands), nil
}

// resolveExpr resolves any expression node to a value. env may be nil when
// resolving a context with no local names (e.g. a top-level type position).
func (b *builder) resolveExpr(env *scope, e tvmast.Expr) (*ssa.Value, error) {
	switch t := e.(type) {
	case tvmast.NameRef:
		if env != nil {
			if v, ok := env.values[t.Name]; ok {
				return v, nil
			}
		}

		return nil, diag.New(diag.SemanticError, t.Rng.Begin, "undefined value %%%s", t.Name)
	case tvmast.Operator:
		return b.resolveOperator(env, t), nil
	case tvmast.IntLit:
		return b.resolveIntLit(t), nil
	case tvmast.Call:
		return b.resolveCall(env, t)
	case tvmast.FuncTypeLit:
		return b.resolveFunctionType(t.Type)
	case tvmast.ExistsExpr:
		inner, err := b.resolveExpr(env, t.Inner)
		if err != nil {
			return nil, err
		}

		return b.mod.Intern("exists", b.mod.Metatype, []*ssa.Value{inner}), nil
	case tvmast.PhiExpr:
		return b.resolvePhi(env, t)
	default:
		return nil, diag.New(diag.SemanticError, e.Range().Begin, "unhandled expression %T", e)
	}
}

// resolveOperator resolves a bareword: a block label in the active scope, a
// module-level symbol with that name, or — if neither matches — a
// synthesized zero-operand primitive, which is how builtin type names like
// "i32" resolve without ever having been the subject of a "define".
func (b *builder) resolveOperator(env *scope, op tvmast.Operator) *ssa.Value {
	if env != nil {
		if v, ok := env.blocks[op.Name]; ok {
			return v
		}
	}

	if v := b.mod.Lookup(op.Name); v != nil {
		return v
	}

	return b.mod.Intern(op.Name, b.mod.Metatype, nil)
}

func (b *builder) resolveIntLit(lit tvmast.IntLit) *ssa.Value {
	typ := b.mod.Intern(primitiveTypeName(lit.Signed, lit.Width), b.mod.Metatype, nil)

	value := "nil"
	if lit.Value != nil {
		value = lit.Value.String()
	}

	return b.mod.Intern("lit:"+value, typ, nil)
}

// primitiveTypeName is the canonical bareword a primitive integer type
// resolves to: the same spelling used by a literal's own width/sign and by
// an unresolved bareword type reference, so "i32" written either way names
// the same interned value.
func primitiveTypeName(signed bool, width int) string {
	letter := byte('p')

	switch width {
	case 8:
		letter = 'b'
	case 16:
		letter = 's'
	case 32:
		letter = 'i'
	case 64:
		letter = 'l'
	case 128:
		letter = 'q'
	}

	prefix := ""
	if !signed {
		prefix = "u"
	}

	if width <= 0 {
		return prefix + "ptr"
	}

	return prefix + string(letter) + itoa(width)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[i:])
}

// instructionTags is spec §6.2's instruction-operator vocabulary narrowed to
// the tags that are never pure: per the glossary's "functional value —
// constants, type constructors, arithmetic on other functional values",
// arithmetic/comparison mnemonics (add, cmp_eq, ...) remain interned, but
// anything with a side effect or control-flow meaning must not be: two
// `alloca i32` in two different functions are two distinct instructions,
// not one shared node, even though they are structurally identical.
var instructionTags = map[string]bool{
	"load": true, "store": true, "alloca": true, "freea": true,
	"call": true, "return": true, "goto": true, "cond_br": true,
	"phi": true, "element_ptr": true, "struct_ep": true, "outer_ptr": true,
	"cast": true, "unreachable": true,
}

// newInstruction allocates a fresh, never-shared Instruction-category value
// with operands bound in order — the same construction ssa.NewValue +
// SetOperand pattern resolvePhi already uses for "phi", generalized to
// every other effectful/control tag.
func newInstruction(tag string, typ *ssa.Value, operands []*ssa.Value) *ssa.Value {
	v := ssa.NewValue(ssa.Instruction, tag, typ, len(operands))
	for i, op := range operands {
		v.SetOperand(i, op)
	}

	return v
}

// resolveCall builds the value for a call. When the operator is a bareword
// mnemonic (the common case: "add", "int", "return", ...) naming a pure
// functional operator, its text becomes the interned tag directly so
// structurally identical occurrences share one node. A bareword naming an
// instruction tag (§6.2), or an indirect call through a resolved value (a
// function reference that isn't a bareword), instead allocates a fresh,
// unshared Instruction value: each call site is its own instruction and
// must not collapse with another occurrence that merely looks the same.
func (b *builder) resolveCall(env *scope, call tvmast.Call) (*ssa.Value, error) {
	args := make([]*ssa.Value, 0, len(call.Args))

	for _, a := range call.Args {
		av, err := b.resolveExpr(env, a)
		if err != nil {
			return nil, err
		}

		args = append(args, av)
	}

	if opName, ok := call.Op.(tvmast.Operator); ok {
		typ := b.inferResultType(opName.Name, args)

		if instructionTags[opName.Name] || b.namesFunction(opName.Name, env) {
			return newInstruction(opName.Name, typ, args), nil
		}

		return b.mod.Intern(opName.Name, typ, args), nil
	}

	opv, err := b.resolveExpr(env, call.Op)
	if err != nil {
		return nil, err
	}

	operands := append([]*ssa.Value{opv}, args...)

	resultType := b.mod.Metatype
	if opv.Type != nil {
		resultType = opv.Type
	}

	return newInstruction("call", resultType, operands), nil
}

// namesFunction reports whether name resolves to a module-level function
// (as opposed to a block label, a type constructor, or a builtin primitive
// mnemonic): a direct call to a declared TVM function is an instruction
// (the callee may have side effects, or simply be a distinct call site),
// never a functional value to hash-cons.
func (b *builder) namesFunction(name string, env *scope) bool {
	if env != nil {
		if _, ok := env.blocks[name]; ok {
			return false
		}
	}

	v := b.mod.Lookup(name)

	return v != nil && v.Category == ssa.Global && v.Type != nil && strings.HasPrefix(v.Type.Tag, "function")
}

// inferResultType is a best-effort stand-in for full instruction typing,
// which belongs to the aggregate-lowering/calling-convention stages this
// package feeds, not to name resolution: type constructors produce a type
// (Metatype), everything else inherits its first operand's type.
func (b *builder) inferResultType(tag string, args []*ssa.Value) *ssa.Value {
	if tag == "int" {
		return b.mod.Metatype
	}

	if len(args) > 0 && args[0] != nil && args[0].Type != nil {
		return args[0].Type
	}

	return b.mod.Metatype
}
