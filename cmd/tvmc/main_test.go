package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/logrusorgru/aurora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newTestApp(out *bytes.Buffer) *cli.App {
	au := aurora.NewAurora(false)

	return &cli.App{
		Name:   "tvmc",
		Writer: out,
		Commands: []*cli.Command{
			parseCommand(au),
			emitCCommand(au),
			runCommand(au),
		},
	}
}

func writeSource(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "m.tvm")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	return path
}

func TestParseCommandPrintsRoundTrippableSource(t *testing.T) {
	file := writeSource(t, `%g = global const export i32 #i42;`)

	var out bytes.Buffer
	app := newTestApp(&out)

	require.NoError(t, app.Run([]string{"tvmc", "parse", file}))
	assert.Contains(t, out.String(), "global")
}

func TestParseCommandRequiresAFile(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(&out)

	assert.Error(t, app.Run([]string{"tvmc", "parse"}))
}

func TestEmitCCommandPrintsGeneratedSource(t *testing.T) {
	file := writeSource(t, `%g = global const export i32 #i42;`)

	var out bytes.Buffer
	app := newTestApp(&out)

	require.NoError(t, app.Run([]string{"tvmc", "emit-c", file}))
	assert.Contains(t, out.String(), "int32_t g = 42;")
}

func TestRunCommandReportsExportedSymbols(t *testing.T) {
	dir := t.TempDir()
	mathPath := filepath.Join(dir, "math.tvm")
	require.NoError(t, os.WriteFile(mathPath, []byte(`%g = global const export i32 #i42;`), 0o644))

	manifest := filepath.Join(dir, "tvm.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
triple = "x86_64-unknown-linux-gnu"

[[module]]
name = "math"
path = "`+mathPath+`"

[jit]
"tvm.jit" = "vmexec"
`), 0o644))

	var out bytes.Buffer
	app := newTestApp(&out)

	require.NoError(t, app.Run([]string{"tvmc", "run", manifest}))
	assert.Contains(t, out.String(), "g -> math")
}
