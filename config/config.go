// Package config parses the JIT property dictionary of spec §6.4: a flat
// sequence of "dotted.key = value" lines. The backend name lives under the
// fixed key "tvm.jit"; everything else is an opaque per-backend property
// (e.g. "tvm.llvm.opt", "tvm.c.cc.path") that the orchestrator never
// interprets itself and a backend may or may not look at.
//
// The grammar is built with participle, the same parser-combinator library
// the teacher repo uses for its own small declarative file formats, grouped
// under a stateful lexer in the same style as the teacher's own lexer
// (one rule per token kind, longest rules first).
package config

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer/stateful"

	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
)

const sString = `"(\\"|[^"])*"`

var configLexer = stateful.MustSimple([]stateful.Rule{
	{Name: "comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: sString},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Number", Pattern: `-?[0-9]+(\.[0-9]+)?`},
	{Name: "Eq", Pattern: `=`},
	{Name: "EOL", Pattern: `\r?\n`},
	{Name: "whitespace", Pattern: `[ \t]+`},
})

// dict is the participle grammar root: a sequence of entries and bare EOL
// tokens (blank lines); whitespace and comments are dropped by the lexer.
type dict struct {
	Entries []*entry `(@@ | EOL)*`
}

type entry struct {
	Key   string `@Ident Eq`
	Value value  `@@ EOL?`
}

type value struct {
	String *string `@String`
	Ident  *string `| @Ident`
	Number *string `| @Number`
}

func (v value) text() string {
	switch {
	case v.String != nil:
		return strings.Trim(*v.String, `"`)
	case v.Ident != nil:
		return *v.Ident
	case v.Number != nil:
		return *v.Number
	default:
		return ""
	}
}

// Dict is a parsed property dictionary: an insertion-ordered set of dotted
// keys to their string values.
type Dict struct {
	keys   []string
	values map[string]string
}

// Parse parses src (the contents of a property dictionary, typically the
// `[jit]` table's raw text or a standalone file) into a Dict.
func Parse(filename, src string) (*Dict, error) {
	parser, err := participle.Build[dict](
		participle.Lexer(configLexer),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, diag.Wrap(diag.SemanticError, position.Pos{}, err, "building config grammar")
	}

	d, err := parser.ParseString(filename, src)
	if err != nil {
		return nil, diag.Wrap(diag.SemanticError, position.Pos{File: filename}, err, "parsing property dictionary")
	}

	out := &Dict{values: map[string]string{}}
	for _, e := range d.Entries {
		if _, exists := out.values[e.Key]; !exists {
			out.keys = append(out.keys, e.Key)
		}
		out.values[e.Key] = e.Value.text()
	}

	return out, nil
}

// Get returns the raw value stored under key, and whether it was present.
func (d *Dict) Get(key string) (string, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Backend returns the value of "tvm.jit", the one key the orchestrator
// itself interprets; every other key is opaque per-backend configuration.
func (d *Dict) Backend() (string, bool) {
	return d.Get("tvm.jit")
}

// WithPrefix returns every key sharing the dotted prefix (prefix itself
// excluded), keyed by the remainder after the prefix and a dot; the result
// is a map and carries no ordering. A backend like emitc calling
// WithPrefix("tvm.c") for "tvm.c.cc.path" sees {"cc.path": "..."}.
func (d *Dict) WithPrefix(prefix string) map[string]string {
	out := map[string]string{}
	full := prefix + "."

	for _, k := range d.keys {
		if strings.HasPrefix(k, full) {
			out[strings.TrimPrefix(k, full)] = d.values[k]
		}
	}

	return out
}

// Keys returns every key in the dictionary in source order, for callers
// that want to round-trip unknown keys
// back out rather than silently drop them, per spec's "unknown keys are
// preserved and ignored" requirement.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)

	return out
}
