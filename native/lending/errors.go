package lending

import "errors"

// Revert strings are part of the external contract; integrators match on the
// exact text, so they stay stable.
var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrIdenticalTokens    = errors.New("collateral and loan tokens cannot be the same")
	ErrZeroInput          = errors.New("input amount cannot be zero")
	ErrOfferUnavailable   = errors.New("Loan offer is not available")
	ErrNoActiveLoan       = errors.New("No active loan to repay")
	ErrDefaulted          = errors.New("Loan has defaulted - deadline passed")
	ErrNotDefaulted       = errors.New("not defaulted yet")
	ErrNotCancellable     = errors.New("Cannot cancel - loan offer not in cancellable state")
	ErrNoRepayment        = errors.New("No repayment to claim")
	ErrInterestOverflow   = errors.New("Overflow in interest calculation")
	ErrDeadlineOverflow   = errors.New("Overflow calculating deadline")
	ErrFlowDisabled       = errors.New("initiation flow is not enabled")
	ErrNotOfferor         = errors.New("caller is not the offer creator")
	ErrNotFunder          = errors.New("caller is not the loan funder")
	ErrNoLoanToClaim      = errors.New("No loan to claim")
)
