package lending

import (
	"github.com/holiman/uint256"

	"alkadex/core/u128"
)

const (
	// AprPrecision is the basis-point denominator of the quoted APR.
	AprPrecision = 10_000
	// BlocksPerYear converts a duration in blocks into year fractions,
	// assuming ten-minute blocks.
	BlocksPerYear = 52_560
)

var interestDenominator = uint256.NewInt(AprPrecision * BlocksPerYear)

// InterestAmount computes floor(principal * aprBps * duration /
// (AprPrecision * BlocksPerYear)) through the precision-preserving divide.
// Every multiplication in the chain is checked; any escape from the 128-bit
// range fails the whole computation.
func InterestAmount(principal, aprBps, duration *uint256.Int) (*uint256.Int, error) {
	scaled, err := u128.Mul(principal, aprBps)
	if err != nil {
		return nil, ErrInterestOverflow
	}
	numerator, err := u128.Mul(scaled, duration)
	if err != nil {
		return nil, ErrInterestOverflow
	}
	interest, err := u128.ScaledDiv(numerator, interestDenominator)
	if err != nil {
		return nil, ErrInterestOverflow
	}
	return interest, nil
}

// RepaymentAmount is the principal plus accrued interest for the full term.
func RepaymentAmount(principal, aprBps, duration *uint256.Int) (*uint256.Int, error) {
	interest, err := InterestAmount(principal, aprBps, duration)
	if err != nil {
		return nil, err
	}
	total, err := u128.Add(principal, interest)
	if err != nil {
		return nil, ErrInterestOverflow
	}
	return total, nil
}
