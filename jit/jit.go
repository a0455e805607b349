// Package jit implements the JIT orchestration layer of spec §4.7: a map
// from module to handle, a global exported-symbol table, monotonic load
// priorities, and add/remove/destroy with constructor/destructor ordering.
package jit

import (
	"github.com/tvmlang/tvm/backend"
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/ssa"
)

// handle owns one loaded module's compiled artifact, its own exported
// symbol names, and the monotonic order it was added in.
type handle struct {
	mod      *ssa.Module
	artifact backend.Artifact
	exported []string
	priority int
}

// Orchestrator is the JIT's single piece of mutable state: the module-to-
// handle map (here keyed by module name, since two modules with the same
// symbol table identity never make sense to load twice) and the global
// exported-symbol table described by spec §4.7.
type Orchestrator struct {
	backend backend.Backend
	triple  string

	handles  map[string]*handle
	order    []string // modules in add order, for destroy()'s reverse walk
	symbols  map[string]*handle
	nextPrio int
}

// New creates an orchestrator bound to one backend and target triple for
// its lifetime; spec's single-threaded cooperative model (§5) means no
// synchronization is needed across its methods.
func New(b backend.Backend, triple string) *Orchestrator {
	return &Orchestrator{
		backend: b,
		triple:  triple,
		handles: map[string]*handle{},
		symbols: map[string]*handle{},
	}
}

// AddModule lowers, compiles, loads, and registers mod's exported symbols,
// then runs its static constructors, per spec's add_module(M).
func (o *Orchestrator) AddModule(mod *ssa.Module) error {
	if _, exists := o.handles[mod.Name]; exists {
		return diag.New(diag.JITError, position.Pos{}, "module %q is already loaded", mod.Name)
	}

	artifact, err := o.backend.Compile(mod, o.triple)
	if err != nil {
		return diag.Wrap(diag.JITError, position.Pos{}, err, "compiling module %q", mod.Name)
	}

	h := &handle{mod: mod, artifact: artifact, priority: o.nextPrio}
	o.nextPrio++

	for _, name := range mod.Symbols() {
		v := mod.Lookup(name)
		if v == nil || !isExported(v) {
			continue
		}

		h.exported = append(h.exported, name)
		o.symbols[name] = h
	}

	if err := artifact.RunCtors(); err != nil {
		return diag.Wrap(diag.JITError, position.Pos{}, err, "running constructors of module %q", mod.Name)
	}

	o.handles[mod.Name] = h
	o.order = append(o.order, mod.Name)

	return nil
}

// isExported reports whether v's linkage, if any is recorded, makes it
// visible outside its module. tvmbuild does not currently thread linkage
// information onto ssa.Value (spec §4.3's value shape has no linkage
// field; it lives only on the AST), so every top-level Global is treated
// as exported here. A module built directly through the ssa API (as every
// test in this package does) has no other way to mark a symbol private
// short of simply not interning it, which is the same outcome.
func isExported(v *ssa.Value) bool {
	return v.Category == ssa.Global
}

// RemoveModule runs mod's static destructors, unregisters any exported
// symbol that the global table still attributes to this module's handle,
// and drops it, per spec's remove_module(M).
func (o *Orchestrator) RemoveModule(name string) error {
	h, ok := o.handles[name]
	if !ok {
		return diag.New(diag.JITError, position.Pos{}, "module %q is not loaded", name)
	}

	if err := h.artifact.RunDtors(); err != nil {
		return diag.Wrap(diag.JITError, position.Pos{}, err, "running destructors of module %q", name)
	}

	for _, sym := range h.exported {
		if o.symbols[sym] == h {
			delete(o.symbols, sym)
		}
	}

	delete(o.handles, name)

	for i, n := range o.order {
		if n == name {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}

	return h.artifact.Close()
}

// GetSymbol resolves name against the global exported-symbol table, per
// spec's get_symbol(g): the orchestrator looks up g's module and requires
// it present before returning the address from that module's table.
func (o *Orchestrator) GetSymbol(name string) (any, error) {
	h, ok := o.symbols[name]
	if !ok {
		return nil, diag.New(diag.JITError, position.Pos{}, "symbol %q is not exported by any loaded module", name)
	}

	val, ok := h.artifact.Symbol(name)
	if !ok {
		return nil, diag.New(diag.JITError, position.Pos{}, "module %q no longer exposes symbol %q", h.mod.Name, name)
	}

	return val, nil
}

// Symbols lists every currently exported symbol and its owning module
// (SPEC_FULL §12's supplemented introspection feature). The result is a
// map and carries no ordering.
func (o *Orchestrator) Symbols() map[string]string {
	out := make(map[string]string, len(o.symbols))
	for name, h := range o.symbols {
		out[name] = h.mod.Name
	}

	return out
}

// Destroy runs destructors for every loaded module in reverse load-priority
// order, then drops all handles, per spec's destroy and scenario S6.
func (o *Orchestrator) Destroy() error {
	for i := len(o.order) - 1; i >= 0; i-- {
		h := o.handles[o.order[i]]
		if h == nil {
			continue
		}

		if err := h.artifact.RunDtors(); err != nil {
			return diag.Wrap(diag.JITError, position.Pos{}, err, "running destructors of module %q", h.mod.Name)
		}

		if err := h.artifact.Close(); err != nil {
			return diag.Wrap(diag.JITError, position.Pos{}, err, "closing module %q", h.mod.Name)
		}
	}

	o.handles = map[string]*handle{}
	o.symbols = map[string]*handle{}
	o.order = nil

	return nil
}
