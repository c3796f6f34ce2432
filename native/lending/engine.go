package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/core/u128"
	"alkadex/native/common"
)

// Opcodes. 0 through 5 are the creditor-first lifecycle; 6 through 8 are the
// collateral-first variant, available only on deployments that enable it.
// 90 and up are read-only views.
const (
	OpInitWithLoanOffer        = 0
	OpTakeLoanWithCollateral   = 1
	OpRepayLoan                = 2
	OpClaimDefaultedCollateral = 3
	OpCancelLoanOffer          = 4
	OpClaimRepayment           = 5
	OpInitWithCollateralOffer  = 6
	OpFundLoan                 = 7
	OpClaimLoan                = 8
	OpGetLoanDetails           = 90
	OpGetRepaymentAmount       = 91
	OpGetTimeRemaining         = 92
	OpGetState                 = 93
	OpGetName                  = 99
)

// LoanName is the display name reported by the GetName view.
const LoanName = "ALKANES LOAN"

// Engine is one peer-to-peer loan deployment: a single offer moving through
// the waiting, active and settled states. Authorization in the creditor-first
// flow is a capability token, one unit of the contract's own alkane minted to
// the offer creator; the collateral-first flow gates on recorded caller ids
// instead, since its two parties hold opposing rights.
type Engine struct {
	store       Storage
	debitorFlow bool
}

// NewEngine binds a loan contract to its storage.
func NewEngine(store Storage) *Engine {
	return &Engine{store: store}
}

// EnableDebitorFlow switches on the collateral-first initiation opcodes for
// this deployment.
func (e *Engine) EnableDebitorFlow() {
	if e == nil {
		return
	}
	e.debitorFlow = true
}

// Execute dispatches one call into the loan contract.
func (e *Engine) Execute(ctx *types.CallContext, opcode uint64, inputs []*uint256.Int) (*types.CallResponse, error) {
	switch opcode {
	case OpInitWithLoanOffer:
		return e.initWithLoanOffer(ctx, inputs)
	case OpTakeLoanWithCollateral:
		return e.takeLoanWithCollateral(ctx)
	case OpRepayLoan:
		return e.repayLoan(ctx)
	case OpClaimDefaultedCollateral:
		return e.claimDefaultedCollateral(ctx)
	case OpCancelLoanOffer:
		return e.cancelLoanOffer(ctx)
	case OpClaimRepayment:
		return e.claimRepayment(ctx)
	case OpInitWithCollateralOffer:
		return e.initWithCollateralOffer(ctx, inputs)
	case OpFundLoan:
		return e.fundLoan(ctx)
	case OpClaimLoan:
		return e.claimLoan(ctx)
	case OpGetLoanDetails:
		return e.getLoanDetails()
	case OpGetRepaymentAmount:
		return e.getRepaymentAmount()
	case OpGetTimeRemaining:
		return e.getTimeRemaining(ctx)
	case OpGetState:
		return e.getState()
	case OpGetName:
		return &types.CallResponse{Data: []byte(LoanName)}, nil
	default:
		return nil, fmt.Errorf("lending: unknown opcode %d", opcode)
	}
}

// decodeOffer validates the shared offer parameters of both initiation
// opcodes. The repayment amount is computed eagerly so an offer whose
// interest can never be calculated is rejected before any token moves.
func decodeOffer(inputs []*uint256.Int) (*storedLoan, error) {
	if len(inputs) < 8 {
		return nil, fmt.Errorf("lending: offer wants 8 inputs, got %d", len(inputs))
	}
	collateralToken := types.AlkaneIDFromWords(inputs[0], inputs[1])
	collateralAmount := new(uint256.Int).Set(inputs[2])
	loanToken := types.AlkaneIDFromWords(inputs[3], inputs[4])
	loanAmount := new(uint256.Int).Set(inputs[5])
	duration := new(uint256.Int).Set(inputs[6])
	aprBps := new(uint256.Int).Set(inputs[7])
	if collateralToken.Eq(loanToken) {
		return nil, ErrIdenticalTokens
	}
	if collateralAmount.IsZero() || loanAmount.IsZero() || duration.IsZero() {
		return nil, ErrZeroInput
	}
	if _, err := RepaymentAmount(loanAmount, aprBps, duration); err != nil {
		return nil, err
	}
	state := newStoredLoan()
	state.CollateralToken = collateralToken.Bytes()
	state.LoanToken = loanToken.Bytes()
	state.CollateralAmount = collateralAmount
	state.LoanAmount = loanAmount
	state.DurationBlocks = duration
	state.AprBps = aprBps
	return state, nil
}

// initWithLoanOffer opens a creditor-first offer: the caller escrows the
// loan principal and receives the capability token. Inputs: collateral token
// block/tx, collateral amount, loan token block/tx, loan amount, duration in
// blocks, APR in basis points.
func (e *Engine) initWithLoanOffer(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	current, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if current.Initialized {
		return nil, ErrAlreadyInitialized
	}
	state, err := decodeOffer(inputs)
	if err != nil {
		return nil, err
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, loanToken, state.LoanAmount)
	if err != nil {
		return nil, err
	}
	state.State = StateWaitingForTake
	state.Offeror = ctx.Caller.Bytes()
	state.Initialized = true
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, uint256.NewInt(1))
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// takeLoanWithCollateral accepts a waiting offer: the caller escrows the
// collateral and walks away with the principal. The repayment clock starts
// here.
func (e *Engine) takeLoanWithCollateral(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if state.State != StateWaitingForTake {
		return nil, ErrOfferUnavailable
	}
	collateralToken, err := state.collateralTokenID()
	if err != nil {
		return nil, err
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, collateralToken, state.CollateralAmount)
	if err != nil {
		return nil, err
	}
	deadline, err := u128.Add(uint256.NewInt(ctx.Height), state.DurationBlocks)
	if err != nil {
		return nil, ErrDeadlineOverflow
	}
	state.State = StateActive
	state.LoanStartBlock = ctx.Height
	state.RepaymentDeadline = deadline
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(loanToken, state.LoanAmount)
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// repayLoan settles an active loan before the deadline: principal plus
// interest is escrowed for the creditor and the collateral comes back.
func (e *Engine) repayLoan(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if state.State != StateActive {
		return nil, ErrNoActiveLoan
	}
	if uint256.NewInt(ctx.Height).Gt(state.RepaymentDeadline) {
		return nil, ErrDefaulted
	}
	repayment, err := RepaymentAmount(state.LoanAmount, state.AprBps, state.DurationBlocks)
	if err != nil {
		return nil, err
	}
	collateralToken, err := state.collateralTokenID()
	if err != nil {
		return nil, err
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, loanToken, repayment)
	if err != nil {
		return nil, err
	}
	state.State = StateRepaid
	state.RepaymentHeld = repayment
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(collateralToken, state.CollateralAmount)
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// claimDefaultedCollateral hands the collateral to the creditor once the
// deadline has passed without repayment.
func (e *Engine) claimDefaultedCollateral(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	switch state.State {
	case StateWaitingForTake, StateWaitingForLoan:
		return nil, ErrOfferUnavailable
	case StateActive:
	default:
		return nil, ErrNoActiveLoan
	}
	if err := e.requireCreditor(ctx, state); err != nil {
		return nil, err
	}
	if !uint256.NewInt(ctx.Height).Gt(state.RepaymentDeadline) {
		return nil, ErrNotDefaulted
	}
	collateralToken, err := state.collateralTokenID()
	if err != nil {
		return nil, err
	}
	state.State = StateDefaulted
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(collateralToken, state.CollateralAmount)
	resp.Alkanes.PayAll(ctx.Incoming)
	return resp, nil
}

// cancelLoanOffer withdraws an offer nobody has accepted, returning the
// escrowed deposit. The record resets so the deployment can host a fresh
// offer.
func (e *Engine) cancelLoanOffer(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	var depositToken types.AlkaneID
	var depositAmount *uint256.Int
	switch state.State {
	case StateWaitingForTake:
		if err := common.RequireAuth(ctx.Incoming, ctx.Myself); err != nil {
			return nil, err
		}
		depositToken, err = state.loanTokenID()
		if err != nil {
			return nil, err
		}
		depositAmount = state.LoanAmount
	case StateWaitingForLoan:
		if err := requireCaller(ctx, state.Offeror, ErrNotOfferor); err != nil {
			return nil, err
		}
		depositToken, err = state.collateralTokenID()
		if err != nil {
			return nil, err
		}
		depositAmount = state.CollateralAmount
	default:
		return nil, ErrNotCancellable
	}
	if err := saveLoan(e.store, newStoredLoan()); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(depositToken, depositAmount)
	resp.Alkanes.PayAll(ctx.Incoming)
	return resp, nil
}

// claimRepayment releases the escrowed principal plus interest to the
// creditor after settlement.
func (e *Engine) claimRepayment(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if state.State != StateRepaid || state.RepaymentHeld.IsZero() {
		return nil, ErrNoRepayment
	}
	if err := e.requireCreditor(ctx, state); err != nil {
		return nil, err
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	held := new(uint256.Int).Set(state.RepaymentHeld)
	state.RepaymentHeld.Clear()
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(loanToken, held)
	resp.Alkanes.PayAll(ctx.Incoming)
	return resp, nil
}

// initWithCollateralOffer opens a collateral-first offer: the prospective
// debitor escrows the collateral and waits for a creditor to fund the loan.
// Same inputs as initWithLoanOffer.
func (e *Engine) initWithCollateralOffer(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if !e.debitorFlow {
		return nil, ErrFlowDisabled
	}
	current, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if current.Initialized {
		return nil, ErrAlreadyInitialized
	}
	state, err := decodeOffer(inputs)
	if err != nil {
		return nil, err
	}
	collateralToken, err := state.collateralTokenID()
	if err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, collateralToken, state.CollateralAmount)
	if err != nil {
		return nil, err
	}
	state.State = StateWaitingForLoan
	state.Offeror = ctx.Caller.Bytes()
	state.DebitorFlow = true
	state.Initialized = true
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// fundLoan activates a collateral-first offer. The principal is escrowed for
// the debitor to claim and the repayment clock starts immediately.
func (e *Engine) fundLoan(ctx *types.CallContext) (*types.CallResponse, error) {
	if !e.debitorFlow {
		return nil, ErrFlowDisabled
	}
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if state.State != StateWaitingForLoan {
		return nil, ErrOfferUnavailable
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, loanToken, state.LoanAmount)
	if err != nil {
		return nil, err
	}
	deadline, err := u128.Add(uint256.NewInt(ctx.Height), state.DurationBlocks)
	if err != nil {
		return nil, ErrDeadlineOverflow
	}
	state.State = StateActive
	state.LoanStartBlock = ctx.Height
	state.RepaymentDeadline = deadline
	state.LoanHeld = new(uint256.Int).Set(state.LoanAmount)
	state.Funder = ctx.Caller.Bytes()
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// claimLoan releases the funded principal to the collateral offeror.
func (e *Engine) claimLoan(ctx *types.CallContext) (*types.CallResponse, error) {
	if !e.debitorFlow {
		return nil, ErrFlowDisabled
	}
	state, err := loadLoan(e.store)
	if err != nil {
		return nil, err
	}
	if state.State != StateActive || state.LoanHeld.IsZero() {
		return nil, ErrNoLoanToClaim
	}
	if err := requireCaller(ctx, state.Offeror, ErrNotOfferor); err != nil {
		return nil, err
	}
	loanToken, err := state.loanTokenID()
	if err != nil {
		return nil, err
	}
	held := new(uint256.Int).Set(state.LoanHeld)
	state.LoanHeld.Clear()
	if err := saveLoan(e.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(loanToken, held)
	resp.Alkanes.PayAll(ctx.Incoming)
	return resp, nil
}

// requireCreditor checks the creditor capability: the auth token in the
// creditor-first flow, the recorded funder in the collateral-first flow.
func (e *Engine) requireCreditor(ctx *types.CallContext, state *storedLoan) error {
	if state.DebitorFlow {
		return requireCaller(ctx, state.Funder, ErrNotFunder)
	}
	return common.RequireAuth(ctx.Incoming, ctx.Myself)
}

func requireCaller(ctx *types.CallContext, want []byte, mismatch error) error {
	id, err := types.AlkaneIDFromBytes(want)
	if err != nil {
		return err
	}
	if !ctx.Caller.Eq(id) {
		return mismatch
	}
	return nil
}
