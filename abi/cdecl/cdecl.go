// Package cdecl implements the x86 cdecl calling convention (spec §4.5):
// every aggregate argument over zero bytes is passed byval, and small
// aggregate returns are either coerced into registers or passed through a
// hidden sret pointer depending on the target OS — an asymmetry the source
// material keeps verbatim rather than unifying (spec §9).
package cdecl

import (
	"strings"

	"github.com/tvmlang/tvm/abi"
)

func init() {
	abi.Register(func(triple, cc string) (abi.Target, bool) {
		if cc != "" && cc != "c" {
			return nil, false
		}

		if !strings.HasPrefix(triple, "i386-") && !strings.HasPrefix(triple, "i686-") {
			return nil, false
		}

		return Target{Windows: isWindows(triple) || strings.Contains(triple, "bsd")}, true
	})
}

func isWindows(triple string) bool {
	return strings.Contains(triple, "windows") || strings.Contains(triple, "mingw") || strings.Contains(triple, "msvc")
}

// Target is the x86 cdecl classifier. Windows selects the register-coerced
// small-struct return path, and init sets it for Windows and BSD triples;
// every other OS (Linux) always returns aggregates through a hidden
// pointer, per spec §9's note that this asymmetry is preserved rather than
// reconciled.
type Target struct {
	Windows bool
}

func (t Target) Name() string {
	if t.Windows {
		return "cdecl-x86-windows"
	}

	return "cdecl-x86"
}

// Classify implements cdecl's argument and return rules. Every aggregate
// parameter over zero bytes travels byval aligned to at least 4 bytes,
// whatever its size (a zero-size aggregate is ignored) —
// cdecl never classifies small structs into registers the way System V
// does (spec §4.5's "x86 cdecl byval>0-bytes" rule).
func (t Target) Classify(params []abi.Param, ret abi.Param) (abi.ClassifiedSignature, error) {
	sig := abi.ClassifiedSignature{Params: make([]abi.Disposition, len(params))}

	for i, p := range params {
		switch {
		case !p.IsAggregate:
			sig.Params[i] = abi.Disposition{Mode: abi.Default}
		case p.Size == 0:
			sig.Params[i] = abi.Disposition{Mode: abi.Ignore}
		default:
			sig.Params[i] = abi.Disposition{Mode: abi.Byval, Alignment: max(p.Align, 4)}
		}
	}

	sig.Return = t.classifyReturn(ret)
	sig.Sret = sig.Return.Mode == abi.Byval && ret.IsAggregate

	return sig, nil
}

// classifyReturn matches spec scenario S4: a 6-byte {i32,i16} struct
// returned on Windows coerces into a single 8-byte register rather than
// using a hidden pointer, because it fits the 1-8 byte window; the same
// struct on Linux always returns through sret regardless of size.
func (t Target) classifyReturn(ret abi.Param) abi.Disposition {
	if !ret.IsAggregate {
		return abi.Disposition{Mode: abi.Default}
	}

	if ret.Size == 0 {
		return abi.Disposition{Mode: abi.Ignore}
	}

	if !t.Windows {
		return abi.Disposition{Mode: abi.Byval, Alignment: max(ret.Align, 4)}
	}

	switch {
	case ret.Size <= 8:
		return abi.Disposition{Mode: abi.Default, CoerceSize: coerceSize(ret.Size)}
	default:
		return abi.Disposition{Mode: abi.Byval, Alignment: max(ret.Align, 4)}
	}
}

// coerceSize rounds up to the nearest register-friendly width so a 6-byte
// struct coerces through an 8-byte integer register rather than two
// separate smaller loads.
func coerceSize(size int) int {
	switch {
	case size <= 1:
		return 1
	case size <= 2:
		return 2
	case size <= 4:
		return 4
	default:
		return 8
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}

	return b
}
