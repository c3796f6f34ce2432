// Package token implements the minimal fungible alkane used to exercise the
// pool and lending contracts: a fixed name, an initial mint to the deployer
// and an owner-gated follow-up mint.
package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/core/u128"
	"alkadex/native/common"
)

const (
	OpInitialize     = 0
	OpMint           = 1
	OpGetName        = 99
	OpGetTotalSupply = 101
)

var ErrAlreadyInitialized = errors.New("already initialized")

// Storage abstracts the per-contract keyed state the runtime provides.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var tokenStateKey = []byte("token/state")

type storedToken struct {
	TotalSupply *uint256.Int
	Initialized bool
}

// Token is a fungible alkane. Minting beyond the initial supply requires at
// least one unit of the token itself attached as a capability.
type Token struct {
	store Storage
	name  string
}

// New returns a template constructor for a token with the given name.
func New(name string) func(store Storage) *Token {
	return func(store Storage) *Token {
		return &Token{store: store, name: name}
	}
}

// Execute dispatches one call into the token.
func (t *Token) Execute(ctx *types.CallContext, opcode uint64, inputs []*uint256.Int) (*types.CallResponse, error) {
	switch opcode {
	case OpInitialize:
		return t.initialize(ctx, inputs)
	case OpMint:
		return t.mint(ctx, inputs)
	case OpGetName:
		return &types.CallResponse{Data: []byte(t.name)}, nil
	case OpGetTotalSupply:
		return t.getTotalSupply()
	default:
		return nil, fmt.Errorf("token: unknown opcode %d", opcode)
	}
}

func (t *Token) load() (*storedToken, error) {
	state := &storedToken{TotalSupply: new(uint256.Int)}
	ok, err := t.store.KVGet(tokenStateKey, state)
	if err != nil {
		return nil, fmt.Errorf("token: load state: %w", err)
	}
	if !ok {
		return &storedToken{TotalSupply: new(uint256.Int)}, nil
	}
	if state.TotalSupply == nil {
		state.TotalSupply = new(uint256.Int)
	}
	return state, nil
}

func (t *Token) save(state *storedToken) error {
	if err := t.store.KVPut(tokenStateKey, state); err != nil {
		return fmt.Errorf("token: save state: %w", err)
	}
	return nil
}

func (t *Token) initialize(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 1 {
		return nil, fmt.Errorf("token: initialize wants a supply input")
	}
	state, err := t.load()
	if err != nil {
		return nil, err
	}
	if state.Initialized {
		return nil, ErrAlreadyInitialized
	}
	supply := inputs[0]
	state.TotalSupply = new(uint256.Int).Set(supply)
	state.Initialized = true
	if err := t.save(state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, supply)
	return resp, nil
}

func (t *Token) mint(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 1 {
		return nil, fmt.Errorf("token: mint wants an amount input")
	}
	if err := common.RequireAuth(ctx.Incoming, ctx.Myself); err != nil {
		return nil, err
	}
	state, err := t.load()
	if err != nil {
		return nil, err
	}
	amount := inputs[0]
	supply, err := u128.Add(state.TotalSupply, amount)
	if err != nil {
		return nil, err
	}
	state.TotalSupply = supply
	if err := t.save(state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, amount)
	resp.Alkanes.PayAll(ctx.Incoming)
	return resp, nil
}

func (t *Token) getTotalSupply() (*types.CallResponse, error) {
	state, err := t.load()
	if err != nil {
		return nil, err
	}
	return &types.CallResponse{Data: types.AppendU128(nil, state.TotalSupply)}, nil
}
