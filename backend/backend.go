// Package backend defines the seam the JIT orchestrator (spec §4.7) compiles
// and loads modules through, shared by the interpreting backend (vmexec)
// and the C-text backend (emitc) so the orchestrator never special-cases
// either (SPEC_FULL §4's implementation note).
package backend

import "github.com/tvmlang/tvm/ssa"

// Artifact is a backend's compiled, loaded representation of one module: an
// in-process interpreter image, or a loaded shared object, depending on the
// backend. It is opaque to the orchestrator beyond its symbol table.
type Artifact interface {
	// Symbol returns the callable/addressable value for an exported name,
	// or false if the module never exported it.
	Symbol(name string) (any, bool)

	// RunCtors executes the module's static constructors, in declaration
	// order, synchronously.
	RunCtors() error

	// RunDtors executes the module's static destructors, in declaration
	// order (the orchestrator is responsible for reversing module order,
	// not instruction order within a module).
	RunDtors() error

	// Close releases any resources the artifact holds (mapped memory, open
	// file handles for a compiled shared object, and so on).
	Close() error
}

// Backend compiles a lowered module into an Artifact. Compile is expected
// to lower the module's aggregate types and classify its calls internally;
// the orchestrator passes it the raw, unlowered module.
type Backend interface {
	Name() string
	Compile(mod *ssa.Module, triple string) (Artifact, error)
}

var registry = map[string]Backend{}

// Register adds a Backend to the global registry under its own Name(), the
// same self-registration idiom abi.Register uses for target ABIs.
// Concrete backends (vmexec, emitc) call this from an init func.
func Register(b Backend) {
	registry[b.Name()] = b
}

// Lookup returns the backend registered under name, per the "tvm.jit" key
// of the JIT configuration (spec §6.4).
func Lookup(name string) (Backend, bool) {
	b, ok := registry[name]
	return b, ok
}
