// Package u128 implements the overflow-checked unsigned 128-bit arithmetic
// used by the pool and loan contracts. Values are carried in uint256 words so
// that products of two in-range operands always have full-width room; every
// operation that could leave the 128-bit range reports a typed failure
// instead of wrapping.
package u128

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrAddOverflow = errors.New("Overflow in addition")
	ErrSubOverflow = errors.New("Overflow in subtraction")
	ErrMulOverflow = errors.New("Overflow in multiplication")
	ErrDivision    = errors.New("Division error")
)

// Max is the largest representable value, 2^128 - 1.
var Max = func() *uint256.Int {
	v := new(uint256.Int)
	v[0] = ^uint64(0)
	v[1] = ^uint64(0)
	return v
}()

// Fits reports whether v is inside the 128-bit range.
func Fits(v *uint256.Int) bool {
	return v != nil && v.BitLen() <= 128
}

// New returns a fresh integer holding the given small value.
func New(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// MustFromDec parses a decimal constant, panicking on malformed input. Only
// used for package-level constants.
func MustFromDec(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic("invalid integer constant: " + s)
	}
	return v
}

// Add returns a+b, failing when the sum leaves the 128-bit range.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum := new(uint256.Int).Add(a, b)
	if !Fits(sum) {
		return nil, ErrAddOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing on underflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, ErrSubOverflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

// Mul returns a*b, failing when the product leaves the 128-bit range. The
// operands themselves must already be in range, so the full-width product
// never wraps.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product := new(uint256.Int).Mul(a, b)
	if !Fits(product) {
		return nil, ErrMulOverflow
	}
	return product, nil
}

// MulWide returns the full-width product of two in-range operands. The result
// may exceed 128 bits but never 256, so it needs no check.
func MulWide(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Mul(a, b)
}

// Div returns floor(a/b), failing on a zero divisor.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivision
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns floor(a*b/den) computed at full width, failing on a zero
// divisor or when the quotient leaves the 128-bit range.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, ErrDivision
	}
	q := new(uint256.Int).Mul(a, b)
	q.Div(q, den)
	if !Fits(q) {
		return nil, ErrMulOverflow
	}
	return q, nil
}

// Sqrt returns the floor integer square root. The input may be a full-width
// product; the root of any 256-bit value fits 128 bits.
func Sqrt(v *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(v)
}

// Min returns the smaller operand.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
