package jit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/backend"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/jit"
	"github.com/tvmlang/tvm/ssa"
	"github.com/tvmlang/tvm/tvmbuild"
	"github.com/tvmlang/tvm/tvmparse"
	"github.com/tvmlang/tvm/vmexec"
)

// fakeArtifact lets tests observe constructor/destructor ordering without
// needing a real backend to interpret or compile anything, the same way a
// unit test for a loader stubs the thing actually being loaded.
type fakeArtifact struct {
	name    string
	log     *[]string
	symbols map[string]any
}

func (f *fakeArtifact) Symbol(name string) (any, bool) { v, ok := f.symbols[name]; return v, ok }
func (f *fakeArtifact) RunCtors() error                { *f.log = append(*f.log, f.name+"_ctor"); return nil }
func (f *fakeArtifact) RunDtors() error                { *f.log = append(*f.log, f.name+"_dtor"); return nil }
func (f *fakeArtifact) Close() error                   { return nil }

type fakeBackend struct {
	log *[]string
}

func (fakeBackend) Name() string { return "fake" }

func (b fakeBackend) Compile(mod *ssa.Module, triple string) (backend.Artifact, error) {
	return &fakeArtifact{name: mod.Name, log: b.log, symbols: map[string]any{mod.Name + ".sym": 42}}, nil
}

// moduleWithSym builds a module declaring one global, name+".sym", the
// symbol fakeArtifact resolves for that module.
func moduleWithSym(t *testing.T, name string) *ssa.Module {
	t.Helper()

	mod := ssa.NewModule(name)
	i32 := mod.Intern("i32", mod.Metatype, nil)
	_, err := mod.NewGlobal(position.Pos{}, name+".sym", i32)
	require.NoError(t, err)

	return mod
}

// TestScenarioS6CtorDtorOrdering matches spec §8 scenario S6 exactly: two
// modules added in order M1, M2; destroy() must run destructors in strict
// reverse add order.
func TestScenarioS6CtorDtorOrdering(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	require.NoError(t, o.AddModule(ssa.NewModule("M1")))
	require.NoError(t, o.AddModule(ssa.NewModule("M2")))

	assert.Equal(t, []string{"M1_ctor", "M2_ctor"}, log)

	require.NoError(t, o.Destroy())

	assert.Equal(t, []string{"M1_ctor", "M2_ctor", "M2_dtor", "M1_dtor"}, log)
}

func TestAddModuleRejectsDuplicateName(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	require.NoError(t, o.AddModule(ssa.NewModule("M")))

	err := o.AddModule(ssa.NewModule("M"))
	assert.Error(t, err)
}

func TestGetSymbolResolvesExportedGlobal(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	mod := ssa.NewModule("M")
	i32 := mod.Intern("i32", mod.Metatype, nil)
	_, err := mod.NewGlobal(position.Pos{}, "M.sym", i32)
	require.NoError(t, err)

	require.NoError(t, o.AddModule(mod))

	v, err := o.GetSymbol("M.sym")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGetSymbolMissingIsError(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	_, err := o.GetSymbol("nope")
	assert.Error(t, err)
}

func TestRemoveModuleRunsDestructorAndUnregisters(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	mod := moduleWithSym(t, "M")
	require.NoError(t, o.AddModule(mod))

	require.NoError(t, o.RemoveModule("M"))
	assert.Equal(t, []string{"M_ctor", "M_dtor"}, log)

	_, err := o.GetSymbol("M.sym")
	assert.Error(t, err)
}

func TestRemoveModuleUnknownIsError(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	assert.Error(t, o.RemoveModule("nope"))
}

// TestScenarioS2GetSymbolCallsCompiledFunction matches spec §8 scenario S2
// through the full stack: parse, build, compile with the real vmexec
// backend, then fetch and invoke get_symbol("f") — not merely observe that
// it is present.
func TestScenarioS2GetSymbolCallsCompiledFunction(t *testing.T) {
	ast, err := tvmparse.Parse("t.tvm", []byte(`%f = export function (%a:i32,%b:i32) > i32 { return (add %a %b); };`))
	require.NoError(t, err)

	mod, err := tvmbuild.Build(ast)
	require.NoError(t, err)

	o := jit.New(vmexec.Backend{}, "x86_64-unknown-linux-gnu")
	require.NoError(t, o.AddModule(mod))

	sym, err := o.GetSymbol("f")
	require.NoError(t, err)

	fn, ok := sym.(vmexec.Func)
	require.True(t, ok)

	sum, err := fn(3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sum)

	zero, err := fn(-1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero)
}

func TestSymbolsReflectsLoadedModules(t *testing.T) {
	var log []string
	o := jit.New(fakeBackend{log: &log}, "x86_64-unknown-linux-gnu")

	require.NoError(t, o.AddModule(moduleWithSym(t, "M1")))
	require.NoError(t, o.AddModule(moduleWithSym(t, "M2")))

	syms := o.Symbols()
	assert.Equal(t, "M1", syms["M1.sym"])
	assert.Equal(t, "M2", syms["M2.sym"])
}
