package types

import "github.com/holiman/uint256"

// Host is the surface a contract sees of the runtime it executes in. All
// calls are synchronous; a returned error reverts the nested call only, the
// caller decides whether to propagate it.
type Host interface {
	// Call dispatches into another contract with the given opcode inputs and
	// attached transfers. Attached transfers are debited from the calling
	// contract before the target runs.
	Call(target AlkaneID, inputs []*uint256.Int, transfers TransferParcel) (*CallResponse, error)
	// Create instantiates a new contract from a registered template and runs
	// its initialization call.
	Create(template string, inputs []*uint256.Int, transfers TransferParcel) (AlkaneID, *CallResponse, error)
	// Balance reports the runtime ledger balance of token held by owner.
	Balance(owner, token AlkaneID) *uint256.Int
}

// CallContext carries everything a contract may observe about the current
// call. Contracts receive no ambient state; height and time come from the
// block being executed.
type CallContext struct {
	Myself   AlkaneID
	Caller   AlkaneID
	Incoming TransferParcel
	Height   uint64
	Time     uint64
	Host     Host
}

// CallResponse is what a contract hands back on success: transfers to credit
// to the caller and an opaque data payload for view results.
type CallResponse struct {
	Alkanes TransferParcel
	Data    []byte
}
