package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/workspace"
)

const sample = `
triple = "x86_64-unknown-linux-gnu"

[[module]]
name = "math"
path = "math.tvm"

[[module]]
name = "main"
path = "main.tvm"

[jit]
"tvm.jit" = "vmexec"
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tvm.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	return path
}

func TestLoadParsesTripleAndModulesInOrder(t *testing.T) {
	ws, err := workspace.Load(writeTemp(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "x86_64-unknown-linux-gnu", ws.Triple)
	require.Len(t, ws.Modules, 2)
	assert.Equal(t, "math", ws.Modules[0].Name)
	assert.Equal(t, "main", ws.Modules[1].Name)
}

func TestLoadExposesJITBackendKey(t *testing.T) {
	ws, err := workspace.Load(writeTemp(t, sample))
	require.NoError(t, err)

	backend, ok := ws.JIT.Backend()
	require.True(t, ok)
	assert.Equal(t, "vmexec", backend)
}

func TestLoadRejectsMissingTriple(t *testing.T) {
	_, err := workspace.Load(writeTemp(t, `
[[module]]
name = "main"
path = "main.tvm"
`))
	assert.Error(t, err)
}

func TestLoadRejectsNoModules(t *testing.T) {
	_, err := workspace.Load(writeTemp(t, `triple = "x86_64-unknown-linux-gnu"`))
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := workspace.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
