package vmexec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/backend"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/ssa"
	"github.com/tvmlang/tvm/tvmbuild"
	"github.com/tvmlang/tvm/tvmparse"
	"github.com/tvmlang/tvm/vmexec"
)

func TestRegistersUnderOwnName(t *testing.T) {
	b, ok := backend.Lookup("vmexec")
	require.True(t, ok)
	assert.Equal(t, "vmexec", b.Name())
}

func TestCompileEvaluatesGlobalInitializer(t *testing.T) {
	mod := ssa.NewModule("t")
	i32 := mod.Intern("i32", mod.Metatype, nil)
	five := mod.Intern("lit:5", i32, nil)
	seven := mod.Intern("lit:7", i32, nil)
	sum := mod.Intern("add", i32, []*ssa.Value{five, seven})

	_, err := mod.NewGlobal(position.Pos{}, "g", i32)
	require.NoError(t, err)
	mod.Lookup("g").SetOperand(0, sum)

	b := vmexec.Backend{}
	artifact, err := b.Compile(mod, "x86_64-unknown-linux-gnu")
	require.NoError(t, err)

	v, ok := artifact.Symbol("g")
	require.True(t, ok)
	assert.Equal(t, int64(12), v)
}

// TestScenarioS6CtorDtorOrdering matches spec §8 scenario S6 at the global
// evaluation level: ctor/dtor globals are re-evaluated in sorted name
// order by RunCtors/RunDtors; the orchestrator (jit package) is what
// reverses destructor order across modules.
func TestScenarioS6CtorDtorOrdering(t *testing.T) {
	mod := ssa.NewModule("t")
	i32 := mod.Intern("i32", mod.Metatype, nil)
	one := mod.Intern("lit:1", i32, nil)

	_, err := mod.NewGlobal(position.Pos{}, "ctor$m1", i32)
	require.NoError(t, err)
	mod.Lookup("ctor$m1").SetOperand(0, one)

	_, err = mod.NewGlobal(position.Pos{}, "dtor$m1", i32)
	require.NoError(t, err)
	mod.Lookup("dtor$m1").SetOperand(0, one)

	b := vmexec.Backend{}
	artifact, err := b.Compile(mod, "x86_64-unknown-linux-gnu")
	require.NoError(t, err)

	require.NoError(t, artifact.RunCtors())
	require.NoError(t, artifact.RunDtors())
}

func TestCompileSkipsFunctionSymbols(t *testing.T) {
	mod := ssa.NewModule("t")
	i32 := mod.Intern("i32", mod.Metatype, nil)

	_, err := mod.NewFunction(position.Pos{}, "f", nil, 0)
	require.NoError(t, err)
	mod.Lookup("f").Type = mod.Intern("function", mod.Metatype, []*ssa.Value{i32})

	b := vmexec.Backend{}
	artifact, err := b.Compile(mod, "x86_64-unknown-linux-gnu")
	require.NoError(t, err)

	_, ok := artifact.Symbol("f")
	assert.False(t, ok)
}

// TestScenarioS2Call matches spec §8 scenario S2 end to end: compiling
// %f and fetching get_symbol("f") must return a callable whose behavior
// actually is %a+%b, not merely a present, uninvokable entry.
func TestScenarioS2Call(t *testing.T) {
	ast, err := tvmparse.Parse("t.tvm", []byte(`%f = export function (%a:i32,%b:i32) > i32 { return (add %a %b); };`))
	require.NoError(t, err)

	mod, err := tvmbuild.Build(ast)
	require.NoError(t, err)

	b := vmexec.Backend{}
	artifact, err := b.Compile(mod, "x86_64-unknown-linux-gnu")
	require.NoError(t, err)

	sym, ok := artifact.Symbol("f")
	require.True(t, ok)

	fn, ok := sym.(vmexec.Func)
	require.True(t, ok)

	sum, err := fn(3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sum)

	zero, err := fn(-1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero)
}

// TestScenarioS2CallMultiFunction exercises a direct, bareword-named call
// from one compiled function's body to another, the call-tagging path
// tvmbuild.resolveCall/namesFunction and lower.LowerFunction's calleeType
// both special-case.
func TestScenarioS2CallMultiFunction(t *testing.T) {
	ast, err := tvmparse.Parse("t.tvm", []byte(`
%double = function (%x:i32) > i32 { return (add %x %x); };
%f = export function (%a:i32,%b:i32) > i32 { return (add (double %a) %b); };
`))
	require.NoError(t, err)

	mod, err := tvmbuild.Build(ast)
	require.NoError(t, err)

	b := vmexec.Backend{}
	artifact, err := b.Compile(mod, "x86_64-unknown-linux-gnu")
	require.NoError(t, err)

	sym, ok := artifact.Symbol("f")
	require.True(t, ok)

	fn := sym.(vmexec.Func)

	got, err := fn(3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}
