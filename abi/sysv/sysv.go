// Package sysv implements the System V AMD64 calling convention (spec
// §4.5): two-eightbyte classification of aggregates against the 6 integer
// argument registers. Every eightbyte classifies as integer: the SSE
// registers are not used for arguments, and returns count integer
// registers only.
package sysv

import (
	"strings"

	"github.com/tvmlang/tvm/abi"
)

const (
	intRegs = 6
	sseRegs = 8
)

func init() {
	abi.Register(func(triple, cc string) (abi.Target, bool) {
		if cc != "" && cc != "c" {
			return nil, false
		}

		if !strings.HasPrefix(triple, "x86_64-") {
			return nil, false
		}

		return Target{}, true
	})
}

// Target is the System V AMD64 classifier. It has no state: every call
// carries its own fresh register budget.
type Target struct{}

func (Target) Name() string { return "sysv-amd64" }

// eightbyteCount is how many 8-byte slices an aggregate of this size
// occupies, per spec's "split into at most two 8-byte groups" — aggregates
// over 16 bytes never fit the two-eightbyte scheme and always spill to
// memory.
func eightbyteCount(size int) int {
	return (size + 7) / 8
}

// classifyAggregate decides whether agg fits in (up to two) integer
// eightbytes or must spill to memory. TVM's own type system has no
// floating-point literal syntax (tvmtoken's width letters are all
// integer-width), so every eightbyte here classifies ClassInteger; the SSE
// merge rules spec describes for mixed int/float aggregates have no
// reachable input in this toolchain and are not implemented — see
// DESIGN.md.
func classifyAggregate(agg abi.Param, intUsed *int) abi.Disposition {
	n := eightbyteCount(agg.Size)
	if n > 2 || agg.Size == 0 {
		if agg.Size == 0 {
			return abi.Disposition{Mode: abi.Ignore}
		}

		return abi.Disposition{Mode: abi.Byval, Alignment: max(agg.Align, 8)}
	}

	if *intUsed+n > intRegs {
		return abi.Disposition{Mode: abi.Byval, Alignment: max(agg.Align, 8)}
	}

	*intUsed += n

	return abi.Disposition{Mode: abi.Default, CoerceSize: n * 8}
}

func (Target) Classify(params []abi.Param, ret abi.Param) (abi.ClassifiedSignature, error) {
	sig := abi.ClassifiedSignature{Params: make([]abi.Disposition, len(params))}

	retIntUsed, retSSEUsed := 0, 0
	_ = retSSEUsed // never incremented: no eightbyte classifies as SSE (see package doc)

	if ret.IsAggregate {
		n := eightbyteCount(ret.Size)
		if ret.Size == 0 {
			sig.Return = abi.Disposition{Mode: abi.Ignore}
		} else if n > 2 || n+retIntUsed > 2 {
			sig.Return = abi.Disposition{Mode: abi.Byval, Alignment: max(ret.Align, 8)}
			sig.Sret = true
		} else {
			sig.Return = abi.Disposition{Mode: abi.Default, CoerceSize: n * 8}
		}
	} else {
		sig.Return = abi.Disposition{Mode: abi.Default}
	}

	intUsed := 0
	if sig.Sret {
		intUsed++ // the hidden sret pointer consumes the first integer register
	}

	for i, p := range params {
		switch {
		case p.IsAggregate:
			sig.Params[i] = classifyAggregate(p, &intUsed)
		case intUsed >= intRegs:
			sig.Params[i] = abi.Disposition{Mode: abi.Byval, Alignment: p.Align}
		default:
			intUsed++
			sig.Params[i] = abi.Disposition{Mode: abi.Default}
		}
	}

	return sig, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}

	return b
}
