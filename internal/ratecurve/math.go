package ratecurve

import (
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// scale is the 1e18 fixed-point unit used for utilization deltas.
	scale = uint256.NewInt(1_000_000_000_000_000_000)
	// scaleSquared is 1e36, the unit of a squared utilization delta.
	scaleSquared = new(uint256.Int).Mul(scale, scale)
)

// checked arithmetic on 256-bit operands. Any wrap is reported instead of
// silently producing a truncated value.

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

func sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, x.Dec(), y.Dec())
	}
	return z, nil
}

func div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, x.Dec())
	}
	return new(uint256.Int).Div(x, y), nil
}

// mulDiv computes x*y/d with a checked product and truncating division.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	p, err := mul(x, y)
	if err != nil {
		return nil, err
	}
	return div(p, d)
}
