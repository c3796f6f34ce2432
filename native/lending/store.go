package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
)

// Storage abstracts the per-contract keyed state the runtime provides.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Loan lifecycle states. The numeric values are exposed through the
// GetLoanDetails and GetState views and must not be reordered.
const (
	StateUninitialized  = 0
	StateWaitingForTake = 1
	StateActive         = 2
	StateRepaid         = 3
	StateDefaulted      = 4
	StateWaitingForLoan = 5
)

var loanStateKey = []byte("lending/loan/state")

// storedLoan is the persisted record backing one loan deployment.
type storedLoan struct {
	State             uint64
	CollateralToken   []byte
	LoanToken         []byte
	CollateralAmount  *uint256.Int
	LoanAmount        *uint256.Int
	DurationBlocks    *uint256.Int
	AprBps            *uint256.Int
	LoanStartBlock    uint64
	RepaymentDeadline *uint256.Int
	RepaymentHeld     *uint256.Int
	LoanHeld          *uint256.Int
	Offeror           []byte
	Funder            []byte
	DebitorFlow       bool
	Initialized       bool
}

func newStoredLoan() *storedLoan {
	return &storedLoan{
		CollateralAmount:  new(uint256.Int),
		LoanAmount:        new(uint256.Int),
		DurationBlocks:    new(uint256.Int),
		AprBps:            new(uint256.Int),
		RepaymentDeadline: new(uint256.Int),
		RepaymentHeld:     new(uint256.Int),
		LoanHeld:          new(uint256.Int),
	}
}

func (s *storedLoan) normalize() {
	for _, field := range []**uint256.Int{
		&s.CollateralAmount, &s.LoanAmount, &s.DurationBlocks, &s.AprBps,
		&s.RepaymentDeadline, &s.RepaymentHeld, &s.LoanHeld,
	} {
		if *field == nil {
			*field = new(uint256.Int)
		}
	}
}

func (s *storedLoan) collateralTokenID() (types.AlkaneID, error) {
	return types.AlkaneIDFromBytes(s.CollateralToken)
}

func (s *storedLoan) loanTokenID() (types.AlkaneID, error) {
	return types.AlkaneIDFromBytes(s.LoanToken)
}

func loadLoan(store Storage) (*storedLoan, error) {
	state := newStoredLoan()
	ok, err := store.KVGet(loanStateKey, state)
	if err != nil {
		return nil, fmt.Errorf("lending: load loan state: %w", err)
	}
	if !ok {
		return newStoredLoan(), nil
	}
	state.normalize()
	return state, nil
}

func saveLoan(store Storage, state *storedLoan) error {
	if err := store.KVPut(loanStateKey, state); err != nil {
		return fmt.Errorf("lending: save loan state: %w", err)
	}
	return nil
}
