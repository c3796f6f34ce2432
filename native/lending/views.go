package lending

import (
	"github.com/holiman/uint256"

	"alkadex/core/types"
)

// getLoanDetails serializes the loan record as little-endian u128 fields.
// The layout grows with the state: 16 bytes for an empty deployment, 144
// once terms exist, 176 when the repayment clock is running.
func (e *Engine) getLoanDetails() (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	data := types.AppendU128(nil, uint256.NewInt(state.State))
	if state.State == StateUninitialized {
		return &types.CallResponse{Data: data}, nil
	}
	collateralToken, err := state.collateralTokenID()
	if err != nil {
		return nil, err
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	data = append(data, collateralToken.Bytes()...)
	data = types.AppendU128(data, state.CollateralAmount)
	data = append(data, loanToken.Bytes()...)
	data = types.AppendU128(data, state.LoanAmount)
	data = types.AppendU128(data, state.DurationBlocks)
	data = types.AppendU128(data, state.AprBps)
	if state.State == StateActive {
		data = types.AppendU128(data, state.RepaymentDeadline)
		data = types.AppendU128(data, uint256.NewInt(state.LoanStartBlock))
	}
	return &types.CallResponse{Data: data}, nil
}

// getRepaymentAmount reports principal plus full-term interest for the
// current terms.
func (e *Engine) getRepaymentAmount() (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if state.State == StateUninitialized {
		return nil, ErrOfferUnavailable
	}
	repayment, err := RepaymentAmount(state.LoanAmount, state.AprBps, state.DurationBlocks)
	if err != nil {
		return nil, err
	}
	return &types.CallResponse{Data: types.AppendU128(nil, repayment)}, nil
}

// getTimeRemaining reports the blocks left before default, zero once the
// deadline has passed or the loan is settled.
func (e *Engine) getTimeRemaining(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	remaining := new(uint256.Int)
	if state.State == StateActive {
		now := uint256.NewInt(ctx.Height)
		if state.RepaymentDeadline.Gt(now) {
			remaining.Sub(state.RepaymentDeadline, now)
		}
	}
	return &types.CallResponse{Data: types.AppendU128(nil, remaining)}, nil
}

func (e *Engine) getState() (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	return &types.CallResponse{Data: types.AppendU128(nil, uint256.NewInt(state.State))}, nil
}
