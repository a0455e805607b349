// Package armeabi implements the 32-bit ARM EABI calling convention (spec
// §4.5): four core argument registers, 8-byte aligned aggregates bound to
// an even-odd register pair, and a split mode for the first aggregate that
// overruns the remaining register budget.
//
// ARM EABI's hard-float variant (VFP registers for float/double arguments)
// is not implemented. TVM has no floating-point literal syntax so no value
// this toolchain classifies ever needs it; spec §9 leaves this as an open
// question for a future float extension rather than something this target
// silently gets wrong today.
package armeabi

import (
	"strings"

	"github.com/tvmlang/tvm/abi"
)

const coreRegs = 4

func init() {
	abi.Register(func(triple, cc string) (abi.Target, bool) {
		if cc != "" && cc != "c" {
			return nil, false
		}

		if !strings.HasPrefix(triple, "arm-") && !strings.HasPrefix(triple, "armv7-") {
			return nil, false
		}

		return Target{}, true
	})
}

// Target is the ARM EABI classifier. Register allocation is tracked
// per-call via a local counter, same as sysv.Target.
type Target struct{}

func (Target) Name() string { return "armeabi" }

// TODO(hard-float): add a VFP register budget once TVM gains a
// floating-point literal syntax; until then every value classifies as a
// core-register candidate.
func (Target) Classify(params []abi.Param, ret abi.Param) (abi.ClassifiedSignature, error) {
	sig := abi.ClassifiedSignature{Params: make([]abi.Disposition, len(params))}

	if ret.IsAggregate && ret.Size > 4 {
		sig.Sret = true
		sig.Return = abi.Disposition{Mode: abi.Byval, Alignment: max(ret.Align, 4)}
	} else if ret.IsAggregate && ret.Size == 0 {
		sig.Return = abi.Disposition{Mode: abi.Ignore}
	} else {
		sig.Return = abi.Disposition{Mode: abi.Default}
	}

	used := 0
	if sig.Sret {
		used++
	}

	splitUsed := false

	for i, p := range params {
		switch {
		case !p.IsAggregate:
			if used >= coreRegs {
				sig.Params[i] = abi.Disposition{Mode: abi.Byval, Alignment: p.Align}
				continue
			}

			used++
			sig.Params[i] = abi.Disposition{Mode: abi.Default}

		case p.Size == 0:
			sig.Params[i] = abi.Disposition{Mode: abi.Ignore}

		default:
			sig.Params[i] = classifyAggregate(p, &used, &splitUsed)
		}
	}

	return sig, nil
}

// classifyAggregate applies the even-odd register pairing rule: an
// aggregate aligned to 8 bytes must start on an even-numbered core
// register, burning an odd leading register if necessary. The first
// aggregate that does not fully fit the remaining registers is split
// (head in registers, tail byval); every aggregate after that goes
// straight to byval, since the register file is already exhausted for
// aggregate purposes once one split has happened.
func classifyAggregate(p abi.Param, used *int, splitUsed *bool) abi.Disposition {
	if p.Align >= 8 && *used%2 != 0 {
		*used++
	}

	regsNeeded := (p.Size + 3) / 4

	if *used+regsNeeded <= coreRegs {
		*used += regsNeeded
		return abi.Disposition{Mode: abi.Default, CoerceSize: regsNeeded * 4}
	}

	if !*splitUsed && *used < coreRegs {
		head := (coreRegs - *used) * 4
		*splitUsed = true
		*used = coreRegs

		return abi.Disposition{Mode: abi.Split, SplitHeadBytes: head, Alignment: max(p.Align, 4)}
	}

	return abi.Disposition{Mode: abi.Byval, Alignment: max(p.Align, 4)}
}

func max(a, b int) int {
	if a > b {
		return a
	}

	return b
}
