// Package workspace loads the TOML manifest of spec §6.5: the target
// triple, an ordered list of modules to build, and the JIT property
// dictionary that picks a backend. A workspace file groups everything one
// `tvmc run` invocation needs to reproduce a JIT session.
package workspace

import (
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tvmlang/tvm/config"
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
)

// ModuleRef names one TVM source file to load, and the name it should be
// registered under in the JIT orchestrator.
type ModuleRef struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// manifest is the raw decoded shape of a tvm.toml file. JIT holds the
// `[jit]` table as a generic string map since its keys are the same opaque
// dotted properties config.Dict models; decoding straight into a Dict
// would need a custom toml.Unmarshaler, so workspace re-flattens the table
// itself and hands the result to config.
type manifest struct {
	Triple string            `toml:"triple"`
	Module []ModuleRef       `toml:"module"`
	JIT    map[string]string `toml:"jit"`
}

// Workspace is a loaded, validated tvm.toml: the target triple, the
// modules in file order (which becomes their JIT load-priority order per
// spec §4.7), and the parsed JIT property dictionary.
type Workspace struct {
	Triple  string
	Modules []ModuleRef
	JIT     *config.Dict
}

// Load decodes path as a tvm.toml workspace manifest.
func Load(path string) (*Workspace, error) {
	var m manifest

	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, diag.Wrap(diag.SemanticError, position.Pos{File: path}, err, "decoding workspace manifest")
	}

	if m.Triple == "" {
		return nil, diag.New(diag.SemanticError, position.Pos{File: path}, "workspace manifest has no target triple")
	}

	if len(m.Module) == 0 {
		return nil, diag.New(diag.SemanticError, position.Pos{File: path}, "workspace manifest lists no modules")
	}

	jit, err := config.Parse(path, flattenJITTable(m.JIT))
	if err != nil {
		return nil, diag.Wrap(diag.SemanticError, position.Pos{File: path}, err, "parsing [jit] table")
	}

	return &Workspace{Triple: m.Triple, Modules: m.Module, JIT: jit}, nil
}

// flattenJITTable re-renders the decoded [jit] table as "key = value" lines
// so the same participle grammar config.Parse uses for a standalone
// property-dictionary file also covers the table embedded in TOML.
func flattenJITTable(jit map[string]string) string {
	var b strings.Builder

	for k, v := range jit {
		b.WriteString(k)
		b.WriteString(` = "`)
		b.WriteString(v)
		b.WriteString("\"\n")
	}

	return b.String()
}
