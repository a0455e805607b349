package tvmbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/ssa"
	"github.com/tvmlang/tvm/tvmparse"
)

func parseModule(t *testing.T, src string) *ssa.Module {
	t.Helper()

	ast, err := tvmparse.Parse("t.tvm", []byte(src))
	require.NoError(t, err)

	mod, err := Build(ast)
	require.NoError(t, err)

	return mod
}

// TestScenarioS2Build matches spec §8 scenario S2.
func TestScenarioS2Build(t *testing.T) {
	mod := parseModule(t, `%f = export function (%a:i32,%b:i32) > i32 { return (add %a %b); };`)

	fn := mod.Lookup("f")
	require.NotNil(t, fn)
	assert.Equal(t, ssa.Global, fn.Category)
	require.Equal(t, 2, fn.NumOperands())

	a := fn.Operand(0)
	b := fn.Operand(1)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, ssa.Parameter, a.Category)
	assert.Equal(t, "a", a.Tag)
	assert.Equal(t, "b", b.Tag)

	// the parameter type is the synthesized primitive "i32", shared between
	// both parameters since it is interned.
	assert.Same(t, a.Type, b.Type)
	assert.Equal(t, "i32", a.Type.Tag)

	// function value's own Type is the interned function-type constructor
	// whose operands are [paramType, paramType, resultType].
	assert.Equal(t, "function", fn.Type.Tag)
	require.Equal(t, 3, fn.Type.NumOperands())
	assert.Same(t, a.Type, fn.Type.Operand(2))
}

func TestGlobalVarWithInitializer(t *testing.T) {
	mod := parseModule(t, `%g = global i32 #i5;`)

	g := mod.Lookup("g")
	require.NotNil(t, g)
	assert.Equal(t, ssa.Global, g.Category)

	init := g.Operand(0)
	require.NotNil(t, init)
	assert.Equal(t, "lit:5", init.Tag)
	assert.Equal(t, "i32", init.Type.Tag)
}

func TestGlobalDefineAliasesExpression(t *testing.T) {
	mod := parseModule(t, `%i32 = define (int #i32);`)

	alias := mod.Lookup("i32")
	require.NotNil(t, alias)

	def := alias.Operand(0)
	require.NotNil(t, def)
	assert.Equal(t, "int", def.Tag)
	assert.Same(t, mod.Metatype, alias.Type)
}

// TestRecursiveTypeSelfReference confirms a recursive type can refer to its
// own name inside its body, resolved through the module's symbol table
// because the name is declared before any body is resolved.
func TestRecursiveTypeSelfReference(t *testing.T) {
	mod := parseModule(t, `%list = recursive (%t | ) > exists list;`)

	list := mod.Lookup("list")
	require.NotNil(t, list)
	require.Equal(t, 2, list.NumOperands())

	phantom := list.Operand(0)
	require.NotNil(t, phantom)
	assert.Equal(t, "t", phantom.Tag)

	body := list.Operand(1)
	require.NotNil(t, body)
	assert.Equal(t, "exists", body.Tag)
	assert.Same(t, list, body.Operand(0))
}

func TestUndefinedLocalNameIsError(t *testing.T) {
	ast, err := tvmparse.Parse("t.tvm", []byte(`%f = function () > i32 { return %missing; };`))
	require.NoError(t, err)

	_, err = Build(ast)
	assert.Error(t, err)
}

func TestPhiResolvesPredecessorBlocks(t *testing.T) {
	mod := parseModule(t, `%f = function () > i32 {
block entry:
  goto next;
block next:
  %v = phi i32 : entry > #i0;
  return %v;
};`)

	fn := mod.Lookup("f")
	require.NotNil(t, fn)
	assert.Equal(t, "function", fn.Type.Tag)
	require.Equal(t, 1, fn.Type.NumOperands(), "no parameters, only the result type")
}
