// Package bigint implements the opaque BigInt collaborator described by the
// specification's scope notes: an arbitrary-width integer of a fixed
// declared width, with parse(str, base, signed) and width(bits) as its only
// required operations. The specification explicitly treats this as an
// external collaborator rather than core toolchain logic, so it is kept
// intentionally small and built on the standard library's math/big rather
// than a third-party bignum package (see DESIGN.md).
package bigint

import (
	"math/big"

	"github.com/pkg/errors"
)

// Int is a fixed-width signed or unsigned integer literal value.
type Int struct {
	v      *big.Int
	width  int // declared bit width; -1 for platform intptr
	signed bool
}

// Parse builds an Int from digits in the given base (10 or 16), validating
// that the value fits in width bits (signed two's-complement or unsigned).
// width of -1 means "platform pointer width", which is not range-checked
// here: the target callback resolves and re-validates it during lowering.
func Parse(digits string, base int, width int, signed bool, negative bool) (*Int, error) {
	if base != 10 && base != 16 {
		return nil, errors.Errorf("bigint: unsupported base %d", base)
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, errors.Errorf("bigint: malformed digits %q in base %d", digits, base)
	}

	if negative {
		v.Neg(v)
	}

	r := &Int{v: v, width: width, signed: signed}

	if width > 0 {
		if !r.fits(width, signed) {
			return nil, errors.Errorf("bigint: value %s does not fit in %d bits (signed=%v)", v.String(), width, signed)
		}
	}

	return r, nil
}

func (i *Int) fits(width int, signed bool) bool {
	if signed {
		lo := new(big.Int).Lsh(big.NewInt(-1), uint(width-1))
		hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(width-1)), big.NewInt(1))
		return i.v.Cmp(lo) >= 0 && i.v.Cmp(hi) <= 0
	}

	if i.v.Sign() < 0 {
		return false
	}

	hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(width)), big.NewInt(1))

	return i.v.Cmp(hi) <= 0
}

// Width reports the declared bit width of the literal, or -1 for intptr.
func (i *Int) Width() int {
	return i.width
}

// Signed reports whether the literal was declared signed.
func (i *Int) Signed() bool {
	return i.signed
}

// Int64 returns the value truncated to an int64, for use by the
// interpreting backend where widths never exceed 64 bits in practice.
func (i *Int) Int64() int64 {
	return i.v.Int64()
}

// String renders the decimal value.
func (i *Int) String() string {
	return i.v.String()
}

// Equal reports structural equality: same value, width and signedness.
// Used by the value graph's interning table, which identifies functional
// literal constants by their BigInt payload.
func (i *Int) Equal(o *Int) bool {
	if o == nil {
		return false
	}

	return i.width == o.width && i.signed == o.signed && i.v.Cmp(o.v) == 0
}
