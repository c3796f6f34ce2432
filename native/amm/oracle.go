package amm

import (
	"github.com/holiman/uint256"

	"alkadex/core/u128"
)

// OraclePrecision is the number of binary fraction bits in the cumulative
// price accumulators (Q128.128).
const OraclePrecision = 128

// updateCumulatives advances the time-weighted price accumulators using the
// reserves as they stood before the current operation. It runs at most once
// per timestamp; the accumulators wrap on overflow, consumers only ever look
// at differences.
func updateCumulatives(state *storedPool, now uint64) {
	if now <= state.LastUpdateTime {
		return
	}
	elapsed := now - state.LastUpdateTime
	state.LastUpdateTime = now
	if state.ReserveA.IsZero() || state.ReserveB.IsZero() {
		return
	}
	dt := uint256.NewInt(elapsed)
	priceA := new(uint256.Int).Lsh(state.ReserveB, OraclePrecision)
	priceA.Div(priceA, state.ReserveA)
	priceA.Mul(priceA, dt)
	state.PriceACumulative.Add(state.PriceACumulative, priceA)
	priceB := new(uint256.Int).Lsh(state.ReserveA, OraclePrecision)
	priceB.Div(priceB, state.ReserveB)
	priceB.Mul(priceB, dt)
	state.PriceBCumulative.Add(state.PriceBCumulative, priceB)
}

var (
	feeShareNum    = uint256.NewInt(2)
	lpShareWeight  = uint256.NewInt(3)
	protocolWeight = uint256.NewInt(2)
)

// skimProtocolFee mints LP shares covering two fifths of the fee growth since
// the last liquidity event, credited to the factory's claimable balance. The
// remaining three fifths stay with the liquidity providers through the share
// price.
func skimProtocolFee(state *storedPool) error {
	if state.KLast.IsZero() {
		return nil
	}
	rootK := u128.Sqrt(u128.MulWide(state.ReserveA, state.ReserveB))
	rootKLast := u128.Sqrt(state.KLast)
	if !rootK.Gt(rootKLast) {
		return nil
	}
	growth := new(uint256.Int).Sub(rootK, rootKLast)
	numerator := u128.MulWide(state.TotalSupply, growth)
	numerator.Mul(numerator, feeShareNum)
	denominator := new(uint256.Int).Mul(rootK, lpShareWeight)
	denominator.Add(denominator, new(uint256.Int).Mul(rootKLast, protocolWeight))
	skim := numerator.Div(numerator, denominator)
	if skim.IsZero() {
		return nil
	}
	supply, err := u128.Add(state.TotalSupply, skim)
	if err != nil {
		return err
	}
	owed, err := u128.Add(state.FeesOwed, skim)
	if err != nil {
		return err
	}
	state.TotalSupply = supply
	state.FeesOwed = owed
	return nil
}

// checkInvariant enforces the fee-adjusted constant product after a swap.
// Balances arrive net of the outputs already paid; the implied inputs are
// charged the 5/1000 fee before comparing against the pre-swap product.
func checkInvariant(state *storedPool, balanceA, balanceB, outA, outB *uint256.Int) error {
	inA := impliedInput(balanceA, state.ReserveA, outA)
	inB := impliedInput(balanceB, state.ReserveB, outB)
	if inA.IsZero() && inB.IsZero() {
		return ErrKNotIncreasing
	}
	adjA, err := adjustedBalance(balanceA, inA)
	if err != nil {
		return err
	}
	adjB, err := adjustedBalance(balanceB, inB)
	if err != nil {
		return err
	}
	left := new(uint256.Int).Mul(adjA, adjB)
	scaledA, err := u128.Mul(state.ReserveA, thousand)
	if err != nil {
		return err
	}
	scaledB, err := u128.Mul(state.ReserveB, thousand)
	if err != nil {
		return err
	}
	right := u128.MulWide(scaledA, scaledB)
	if left.Lt(right) {
		return ErrKNotIncreasing
	}
	return nil
}

// impliedInput recovers how much of one token actually arrived this call:
// the balance growth beyond what paying out of the old reserve explains.
func impliedInput(balance, reserve, out *uint256.Int) *uint256.Int {
	floor := new(uint256.Int).Sub(reserve, out)
	if !balance.Gt(floor) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(balance, floor)
}

func adjustedBalance(balance, in *uint256.Int) (*uint256.Int, error) {
	scaled, err := u128.Mul(balance, thousand)
	if err != nil {
		return nil, err
	}
	fee := new(uint256.Int).Mul(in, uint256.NewInt(FeePer1000))
	return scaled.Sub(scaled, fee), nil
}
