package tvmast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/tvmast"
	"github.com/tvmlang/tvm/tvmparse"
)

// roundTrip parses src, prints the resulting AST, and reparses the printed
// text, matching spec §8's round-trip law: parse -> print -> parse yields a
// structurally equal AST.
func roundTrip(t *testing.T, src string) (*tvmast.Module, *tvmast.Module, string) {
	t.Helper()

	mod, err := tvmparse.Parse("t.tvm", []byte(src))
	require.NoError(t, err)

	printed := tvmast.Print(mod)

	reparsed, err := tvmparse.Parse("t.tvm", []byte(printed))
	require.NoError(t, err, "printed source failed to reparse:\n%s", printed)

	return mod, reparsed, printed
}

func TestPrintGlobalDefineRoundTrips(t *testing.T) {
	_, reparsed, printed := roundTrip(t, `%i32 = define (int #i32);`)

	assert.Contains(t, printed, "define")
	require.Len(t, reparsed.Elements, 1)

	def, ok := reparsed.Elements[0].(*tvmast.GlobalDefine)
	require.True(t, ok)
	assert.Equal(t, "i32", def.Name)
}

// TestPrintScenarioS2RoundTrips matches spec §8 scenario S2's source text.
func TestPrintScenarioS2RoundTrips(t *testing.T) {
	src := `%f = export function (%a:i32,%b:i32) > i32 { return (add %a %b); };`

	_, reparsed, printed := roundTrip(t, src)

	assert.Contains(t, printed, "export")
	assert.Contains(t, printed, "function")

	fn, ok := reparsed.Elements[0].(*tvmast.Function)
	require.True(t, ok)
	assert.Equal(t, "f", fn.Name)
	assert.Equal(t, tvmast.Export, fn.Linkage)
	require.Len(t, fn.Type.Params, 2)
}

func TestPrintGlobalVarWithInitRoundTrips(t *testing.T) {
	_, reparsed, _ := roundTrip(t, `%g = global const export i32 #i42;`)

	gv, ok := reparsed.Elements[0].(*tvmast.GlobalVar)
	require.True(t, ok)
	assert.True(t, gv.Const)
	assert.Equal(t, tvmast.Export, gv.Linkage)
}
