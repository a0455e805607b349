package ssa

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
)

// Module owns every Value produced while building or lowering one TVM
// module: the global symbol table (spec §4.3) and the functional-value
// interning table (spec §4.3's hash-consing rule).
type Module struct {
	Name     string
	Metatype *Value // the distinguished self-typed value; type-of(Metatype) == Metatype

	symbols map[string]*Value
	intern  map[string]*Value
}

// NewModule creates an empty module with its Metatype value already wired
// to satisfy the invariant "type-of(type-of(v)) is Metatype".
func NewModule(name string) *Module {
	m := &Module{
		Name:    name,
		symbols: make(map[string]*Value),
		intern:  make(map[string]*Value),
	}

	mt := &Value{Category: Global, Tag: "metatype"}
	mt.Type = mt
	m.Metatype = mt

	return m
}

// Lookup returns the named top-level symbol, or nil if none exists.
func (m *Module) Lookup(name string) *Value {
	return m.symbols[name]
}

// Symbols returns the module's symbol names in a stable, sorted order.
func (m *Module) Symbols() []string {
	names := make([]string, 0, len(m.symbols))
	for n := range m.symbols {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// declare inserts a new top-level symbol, rejecting a duplicate name (spec
// §4.3: "duplicate names are rejected").
func (m *Module) declare(pos position.Pos, name string, v *Value) error {
	if _, exists := m.symbols[name]; exists {
		return diag.New(diag.SemanticError, pos, "duplicate top-level symbol %q", name)
	}

	m.symbols[name] = v

	return nil
}

// NewGlobal creates a named global-storage value and inserts it into the
// symbol table.
func (m *Module) NewGlobal(pos position.Pos, name string, typ *Value) (*Value, error) {
	v := NewValue(Global, name, typ, 1) // operand 0: optional initializer
	v.Pos = pos

	if err := m.declare(pos, name, v); err != nil {
		return nil, err
	}

	return v, nil
}

// NewFunction creates a named function value (category Global, since a
// function is itself an addressable top-level symbol of function type) and
// inserts it into the symbol table. numParams fixes its parameter operand
// count; callers also build separate Parameter-category values for each
// formal, threaded as operands of this value by the module builder.
func (m *Module) NewFunction(pos position.Pos, name string, typ *Value, numParams int) (*Value, error) {
	v := NewValue(Global, name, typ, numParams)
	v.Pos = pos

	if err := m.declare(pos, name, v); err != nil {
		return nil, err
	}

	return v, nil
}

// NewRecursiveType creates a named recursive-type value.
func (m *Module) NewRecursiveType(pos position.Pos, name string, numParams int) (*Value, error) {
	v := NewValue(Recursive, name, m.Metatype, numParams)
	if err := m.declare(pos, name, v); err != nil {
		return nil, err
	}

	return v, nil
}

// Intern returns the unique functional value for (tag, typ, operands),
// creating it on first use. Two calls with structurally identical
// arguments return the same *Value (spec §4.3: "the same inputs always
// yield the same node; equality and hashing of structural values is
// identity") — identity here means pointer identity of the already-interned
// operands, which is exactly what hash-consing needs.
func (m *Module) Intern(tag string, typ *Value, operands []*Value) *Value {
	key := internKey(tag, typ, operands)

	if existing, ok := m.intern[key]; ok {
		return existing
	}

	v := NewValue(Functional, tag, typ, len(operands))
	v.Hash = fnvHash(key)

	for i, op := range operands {
		v.SetOperand(i, op)
	}

	m.intern[key] = v

	return v
}

func internKey(tag string, typ *Value, operands []*Value) string {
	var b strings.Builder

	b.WriteString(tag)
	fmt.Fprintf(&b, "|%p|", typ)

	for _, op := range operands {
		fmt.Fprintf(&b, "%p,", op)
	}

	return b.String()
}

func fnvHash(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return h.Sum64()
}
