package amm

import (
	"github.com/holiman/uint256"

	"alkadex/core/u128"
)

const (
	// FeePer1000 is the swap fee taken from the input amount, in thousandths.
	FeePer1000 = 5
	// MinimumLiquidity is permanently locked out of the first LP mint so the
	// share price can never be reset by draining the pool completely.
	MinimumLiquidity = 1000
)

var (
	thousand     = uint256.NewInt(1000)
	feeKeep      = uint256.NewInt(1000 - FeePer1000)
	minLiquidity = uint256.NewInt(MinimumLiquidity)
)

// getAmountOut prices an exact-input swap against the given reserves with the
// fee applied to the input: out = in*995*rOut / (rIn*1000 + in*995), floored.
func getAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrZeroInput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee, err := u128.Mul(amountIn, feeKeep)
	if err != nil {
		return nil, err
	}
	numerator := u128.MulWide(inWithFee, reserveOut)
	scaledIn, err := u128.Mul(reserveIn, thousand)
	if err != nil {
		return nil, err
	}
	denominator := new(uint256.Int).Add(scaledIn, inWithFee)
	return new(uint256.Int).Div(numerator, denominator), nil
}

// getAmountIn inverts getAmountOut: the smallest input whose fee-adjusted
// output covers amountOut. The +1 compensates the floor in the forward
// direction so the pool never comes up short.
func getAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrZeroInput
	}
	if reserveIn.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	scaledIn, err := u128.Mul(reserveIn, thousand)
	if err != nil {
		return nil, err
	}
	numerator := u128.MulWide(scaledIn, amountOut)
	room := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, err := u128.Mul(room, feeKeep)
	if err != nil {
		return nil, err
	}
	amountIn := new(uint256.Int).Div(numerator, denominator)
	amountIn.Add(amountIn, uint256.NewInt(1))
	if !u128.Fits(amountIn) {
		return nil, u128.ErrMulOverflow
	}
	return amountIn, nil
}

// quote converts an amount of one reserve token into the ratio-equivalent
// amount of the other at current reserves, floored.
func quote(amount, reserveFrom, reserveTo *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return nil, ErrZeroInput
	}
	if reserveFrom.IsZero() || reserveTo.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return u128.MulDiv(amount, reserveTo, reserveFrom)
}

// initialLiquidity seeds the LP supply with the geometric mean of the first
// deposit, less the locked minimum.
func initialLiquidity(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	root := u128.Sqrt(u128.MulWide(amountA, amountB))
	if !root.Gt(minLiquidity) {
		return nil, ErrInsufficientLiquidityMinted
	}
	return new(uint256.Int).Sub(root, minLiquidity), nil
}
