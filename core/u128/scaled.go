package u128

import "github.com/holiman/uint256"

// scale is the 10^18 precision factor applied before large divisions.
var scale = MustFromDec("1000000000000000000")

// ScaledDiv returns floor(num/den), routed through a 10^18 scale-up whenever
// the scaled numerator still fits the 128-bit range. When the scale-up would
// overflow, the operands are already large enough that the plain division
// loses nothing that matters, so it falls back rather than failing.
func ScaledDiv(num, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, ErrDivision
	}
	scaled := new(uint256.Int).Mul(num, scale)
	if !Fits(scaled) {
		return new(uint256.Int).Div(num, den), nil
	}
	scaled.Div(scaled, den)
	scaled.Div(scaled, scale)
	return scaled, nil
}
