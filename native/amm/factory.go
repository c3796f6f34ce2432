package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/native/common"
)

// Factory opcodes. 11 through 14 are the checked router surface most callers
// should use; the pool-level entries exist for flash swaps and integrators
// that manage their own slippage.
const (
	FactoryOpInitialize               = 0
	FactoryOpCreateNewPool            = 1
	FactoryOpFindExistingPoolID       = 2
	FactoryOpGetAllPools              = 3
	FactoryOpGetNumPools              = 4
	FactoryOpCollectFees              = 10
	FactoryOpAddLiquidity             = 11
	FactoryOpRemoveLiquidity          = 12
	FactoryOpSwapExactTokensForTokens = 13
	FactoryOpSwapTokensForExactTokens = 14
)

// PoolTemplate names the registered pool contract template the factory
// instantiates pairs from.
const PoolTemplate = "amm/pool"

// Factory registers pools, owns the protocol fee capability and fronts the
// deadline/slippage-checked router operations.
type Factory struct {
	store Storage
}

// NewFactory binds a factory contract to its storage.
func NewFactory(store Storage) *Factory {
	return &Factory{store: store}
}

// Execute dispatches one call into the factory.
func (f *Factory) Execute(ctx *types.CallContext, opcode uint64, inputs []*uint256.Int) (*types.CallResponse, error) {
	switch opcode {
	case FactoryOpInitialize:
		return f.initialize(ctx)
	case FactoryOpCreateNewPool:
		return f.createNewPool(ctx, inputs)
	case FactoryOpFindExistingPoolID:
		return f.findExistingPoolID(inputs)
	case FactoryOpGetAllPools:
		return f.getAllPools()
	case FactoryOpGetNumPools:
		return f.getNumPools()
	case FactoryOpCollectFees:
		return f.collectFees(ctx, inputs)
	case FactoryOpAddLiquidity:
		return f.addLiquidity(ctx, inputs)
	case FactoryOpRemoveLiquidity:
		return f.removeLiquidity(ctx, inputs)
	case FactoryOpSwapExactTokensForTokens:
		return f.swapExactTokensForTokens(ctx, inputs)
	case FactoryOpSwapTokensForExactTokens:
		return f.swapTokensForExactTokens(ctx, inputs)
	default:
		return nil, fmt.Errorf("amm: unknown factory opcode %d", opcode)
	}
}

// initialize runs exactly once and mints the fee-collection capability token
// to the deployer.
func (f *Factory) initialize(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadFactory(f.store)
	if err != nil {
		return nil, err
	}
	if state.Initialized {
		return nil, ErrAlreadyInitialized
	}
	state.Initialized = true
	state.AuthToken = ctx.Myself.Bytes()
	if err := saveFactory(f.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, uint256.NewInt(1))
	return resp, nil
}

// createNewPool deploys a pool for an unregistered pair, seeds it with the
// attached deposits and forwards the minted LP shares to the caller. Inputs:
// token1 block/tx, token2 block/tx, amount1, amount2.
func (f *Factory) createNewPool(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 6 {
		return nil, fmt.Errorf("amm: create pool wants 6 inputs, got %d", len(inputs))
	}
	state, err := loadFactory(f.store)
	if err != nil {
		return nil, err
	}
	if !state.Initialized {
		return nil, ErrNotInitialized
	}
	token1 := types.AlkaneIDFromWords(inputs[0], inputs[1])
	token2 := types.AlkaneIDFromWords(inputs[2], inputs[3])
	amount1 := inputs[4]
	amount2 := inputs[5]
	if token1.Eq(token2) {
		return nil, ErrIdenticalTokens
	}
	if amount1.IsZero() || amount2.IsZero() {
		return nil, ErrZeroInput
	}
	tokenA, tokenB := sortTokens(token1, token2)
	amountA, amountB := amount1, amount2
	if !tokenA.Eq(token1) {
		amountA, amountB = amount2, amount1
	}
	pairKey := factoryPairKey(tokenA.Bytes(), tokenB.Bytes())
	var existing []byte
	ok, err := f.store.KVGet(pairKey, &existing)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrPoolExists
	}
	refund, err := common.CollectAll(ctx.Incoming,
		types.Transfer{ID: token1, Value: amount1},
		types.Transfer{ID: token2, Value: amount2},
	)
	if err != nil {
		return nil, err
	}
	var deposits types.TransferParcel
	deposits.Pay(tokenA, amountA)
	deposits.Pay(tokenB, amountB)
	initInputs := []*uint256.Int{
		uint256.NewInt(PoolOpInit),
		&tokenA.Block, &tokenA.Tx,
		&tokenB.Block, &tokenB.Tx,
	}
	poolID, created, err := ctx.Host.Create(PoolTemplate, initInputs, deposits)
	if err != nil {
		return nil, err
	}
	if err := f.store.KVPut(pairKey, poolID.Bytes()); err != nil {
		return nil, err
	}
	entry := &storedPoolEntry{TokenA: tokenA.Bytes(), TokenB: tokenB.Bytes(), Pool: poolID.Bytes()}
	if err := f.store.KVPut(factoryListKey(state.NumPools), entry); err != nil {
		return nil, err
	}
	state.NumPools++
	if err := saveFactory(f.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	if created != nil {
		resp.Alkanes.PayAll(created.Alkanes)
	}
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

func (f *Factory) findExistingPoolID(inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 4 {
		return nil, fmt.Errorf("amm: find pool wants 4 inputs, got %d", len(inputs))
	}
	token1 := types.AlkaneIDFromWords(inputs[0], inputs[1])
	token2 := types.AlkaneIDFromWords(inputs[2], inputs[3])
	poolID, err := f.poolFor(token1, token2)
	if err != nil {
		return nil, err
	}
	return &types.CallResponse{Data: poolID.Bytes()}, nil
}

func (f *Factory) getAllPools() (*types.CallResponse, error) {
	state, err := loadFactory(f.store)
	if err != nil {
		return nil, err
	}
	data := types.AppendU128(nil, uint256.NewInt(state.NumPools))
	for i := uint64(0); i < state.NumPools; i++ {
		entry := &storedPoolEntry{}
		ok, err := f.store.KVGet(factoryListKey(i), entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("amm: missing pool list entry %d", i)
		}
		data = append(data, entry.Pool...)
	}
	return &types.CallResponse{Data: data}, nil
}

func (f *Factory) getNumPools() (*types.CallResponse, error) {
	state, err := loadFactory(f.store)
	if err != nil {
		return nil, err
	}
	return &types.CallResponse{Data: types.AppendU128(nil, uint256.NewInt(state.NumPools))}, nil
}

// collectFees pulls the accrued protocol LP shares out of a pool. Requires
// the factory capability token; both the token and the shares go back to the
// caller.
func (f *Factory) collectFees(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("amm: collect fees wants 2 inputs, got %d", len(inputs))
	}
	state, err := loadFactory(f.store)
	if err != nil {
		return nil, err
	}
	if !state.Initialized {
		return nil, ErrNotInitialized
	}
	authToken, err := types.AlkaneIDFromBytes(state.AuthToken)
	if err != nil {
		return nil, err
	}
	if err := common.RequireAuth(ctx.Incoming, authToken); err != nil {
		return nil, err
	}
	pool := types.AlkaneIDFromWords(inputs[0], inputs[1])
	collected, err := ctx.Host.Call(pool, []*uint256.Int{uint256.NewInt(PoolOpCollectProtocolFees)}, types.TransferParcel{})
	if err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	if collected != nil {
		resp.Alkanes.PayAll(collected.Alkanes)
	}
	resp.Alkanes.PayAll(ctx.Incoming)
	return resp, nil
}

// addLiquidity is the checked deposit path. Inputs: token1, token2 ids,
// amount1 desired, amount2 desired, amount1 min, amount2 min, deadline
// height.
func (f *Factory) addLiquidity(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 9 {
		return nil, fmt.Errorf("amm: add liquidity wants 9 inputs, got %d", len(inputs))
	}
	if err := checkDeadline(ctx, inputs[8]); err != nil {
		return nil, err
	}
	token1 := types.AlkaneIDFromWords(inputs[0], inputs[1])
	token2 := types.AlkaneIDFromWords(inputs[2], inputs[3])
	desired1, desired2 := inputs[4], inputs[5]
	min1, min2 := inputs[6], inputs[7]
	poolID, err := f.poolFor(token1, token2)
	if err != nil {
		return nil, err
	}
	reserve1, reserve2, err := f.reservesFor(ctx, poolID, token1, token2)
	if err != nil {
		return nil, err
	}
	amount1 := new(uint256.Int).Set(desired1)
	amount2 := new(uint256.Int).Set(desired2)
	if !reserve1.IsZero() || !reserve2.IsZero() {
		optimal2, err := quote(desired1, reserve1, reserve2)
		if err != nil {
			return nil, err
		}
		if !optimal2.Gt(desired2) {
			if optimal2.Lt(min2) {
				return nil, ErrInsufficientBAmount
			}
			amount2 = optimal2
		} else {
			optimal1, err := quote(desired2, reserve2, reserve1)
			if err != nil {
				return nil, err
			}
			if optimal1.Lt(min1) {
				return nil, ErrInsufficientAAmount
			}
			amount1 = optimal1
		}
	}
	refund, err := common.CollectAll(ctx.Incoming,
		types.Transfer{ID: token1, Value: amount1},
		types.Transfer{ID: token2, Value: amount2},
	)
	if err != nil {
		return nil, err
	}
	var deposit types.TransferParcel
	deposit.Pay(token1, amount1)
	deposit.Pay(token2, amount2)
	minted, err := ctx.Host.Call(poolID, []*uint256.Int{uint256.NewInt(PoolOpAddLiquidity)}, deposit)
	if err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	if minted != nil {
		resp.Alkanes.PayAll(minted.Alkanes)
	}
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// removeLiquidity is the checked withdrawal path. Inputs: token1, token2
// ids, liquidity, amount1 min, amount2 min, deadline height.
func (f *Factory) removeLiquidity(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 8 {
		return nil, fmt.Errorf("amm: remove liquidity wants 8 inputs, got %d", len(inputs))
	}
	if err := checkDeadline(ctx, inputs[7]); err != nil {
		return nil, err
	}
	token1 := types.AlkaneIDFromWords(inputs[0], inputs[1])
	token2 := types.AlkaneIDFromWords(inputs[2], inputs[3])
	liquidity := inputs[4]
	min1, min2 := inputs[5], inputs[6]
	poolID, err := f.poolFor(token1, token2)
	if err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, poolID, liquidity)
	if err != nil {
		return nil, err
	}
	var burn types.TransferParcel
	burn.Pay(poolID, liquidity)
	burned, err := ctx.Host.Call(poolID, []*uint256.Int{uint256.NewInt(PoolOpRemoveLiquidity)}, burn)
	if err != nil {
		return nil, err
	}
	if burned == nil {
		return nil, fmt.Errorf("amm: pool %s returned no burn response", poolID)
	}
	if burned.Alkanes.ValueOf(token1).Lt(min1) {
		return nil, ErrInsufficientAAmount
	}
	if burned.Alkanes.ValueOf(token2).Lt(min2) {
		return nil, ErrInsufficientBAmount
	}
	resp := &types.CallResponse{}
	resp.Alkanes.PayAll(burned.Alkanes)
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// swapExactTokensForTokens routes a fixed input through one or more pools.
// Inputs: hop count, then block/tx per path token, amount in, min out,
// deadline height.
func (f *Factory) swapExactTokensForTokens(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	path, rest, err := decodePath(inputs)
	if err != nil {
		return nil, err
	}
	if len(rest) < 3 {
		return nil, fmt.Errorf("amm: exact-in swap wants amount, min out and deadline")
	}
	amountIn, minOut := rest[0], rest[1]
	if err := checkDeadline(ctx, rest[2]); err != nil {
		return nil, err
	}
	refund, err := common.Collect(ctx.Incoming, path[0], amountIn)
	if err != nil {
		return nil, err
	}
	current := new(uint256.Int).Set(amountIn)
	for i := 0; i+1 < len(path); i++ {
		out, err := f.executeHop(ctx, path[i], path[i+1], current, nil)
		if err != nil {
			return nil, err
		}
		current = out
	}
	if current.Lt(minOut) {
		return nil, ErrInsufficientOutput
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(path[len(path)-1], current)
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// swapTokensForExactTokens routes toward a fixed output, charging at most
// the caller's input ceiling. Inputs: hop count, then block/tx per path
// token, amount out, max in, deadline height.
func (f *Factory) swapTokensForExactTokens(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	path, rest, err := decodePath(inputs)
	if err != nil {
		return nil, err
	}
	if len(rest) < 3 {
		return nil, fmt.Errorf("amm: exact-out swap wants amount, max in and deadline")
	}
	amountOut, inMax := rest[0], rest[1]
	if err := checkDeadline(ctx, rest[2]); err != nil {
		return nil, err
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[len(path)-1] = new(uint256.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		reserveIn, reserveOut, err := f.hopReserves(ctx, path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		required, err := getAmountIn(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
		amounts[i-1] = required
	}
	if amounts[0].Gt(inMax) {
		return nil, ErrExcessiveInput
	}
	refund, err := common.Collect(ctx.Incoming, path[0], amounts[0])
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(path); i++ {
		if _, err := f.executeHop(ctx, path[i], path[i+1], amounts[i], amounts[i+1]); err != nil {
			return nil, err
		}
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(path[len(path)-1], amounts[len(path)-1])
	resp.Alkanes.PayAll(refund)
	return resp, nil
}

// executeHop swaps amountIn of tokenIn through the pair's pool. When
// wantOut is nil the output is priced off the live reserves.
func (f *Factory) executeHop(ctx *types.CallContext, tokenIn, tokenOut types.AlkaneID, amountIn, wantOut *uint256.Int) (*uint256.Int, error) {
	poolID, err := f.poolFor(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	out := wantOut
	if out == nil {
		reserveIn, reserveOut, err := f.hopReserves(ctx, tokenIn, tokenOut)
		if err != nil {
			return nil, err
		}
		out, err = getAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}
	tokenA, _ := sortTokens(tokenIn, tokenOut)
	outA, outB := out, new(uint256.Int)
	if tokenA.Eq(tokenIn) {
		outA, outB = new(uint256.Int), out
	}
	swapInputs := []*uint256.Int{
		uint256.NewInt(PoolOpSwap),
		outA, outB,
		new(uint256.Int), new(uint256.Int),
	}
	var payment types.TransferParcel
	payment.Pay(tokenIn, amountIn)
	if _, err := ctx.Host.Call(poolID, swapInputs, payment); err != nil {
		return nil, err
	}
	return out, nil
}

// hopReserves returns the pool reserves oriented to the (in, out) direction.
func (f *Factory) hopReserves(ctx *types.CallContext, tokenIn, tokenOut types.AlkaneID) (*uint256.Int, *uint256.Int, error) {
	poolID, err := f.poolFor(tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	reserveIn, reserveOut, err := f.reservesFor(ctx, poolID, tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	return reserveIn, reserveOut, nil
}

// reservesFor queries a pool's reserves and orients them to the caller's
// (token1, token2) order.
func (f *Factory) reservesFor(ctx *types.CallContext, poolID, token1, token2 types.AlkaneID) (*uint256.Int, *uint256.Int, error) {
	resp, err := ctx.Host.Call(poolID, []*uint256.Int{uint256.NewInt(PoolOpGetReserves)}, types.TransferParcel{})
	if err != nil {
		return nil, nil, err
	}
	if resp == nil || len(resp.Data) < 32 {
		return nil, nil, fmt.Errorf("amm: malformed reserves response from pool %s", poolID)
	}
	reserveA, err := types.U128FromBytes(resp.Data[0:16])
	if err != nil {
		return nil, nil, err
	}
	reserveB, err := types.U128FromBytes(resp.Data[16:32])
	if err != nil {
		return nil, nil, err
	}
	tokenA, _ := sortTokens(token1, token2)
	if tokenA.Eq(token1) {
		return reserveA, reserveB, nil
	}
	return reserveB, reserveA, nil
}

// poolFor resolves the registered pool for a pair in either token order.
func (f *Factory) poolFor(token1, token2 types.AlkaneID) (types.AlkaneID, error) {
	tokenA, tokenB := sortTokens(token1, token2)
	var raw []byte
	ok, err := f.store.KVGet(factoryPairKey(tokenA.Bytes(), tokenB.Bytes()), &raw)
	if err != nil {
		return types.AlkaneID{}, err
	}
	if !ok {
		return types.AlkaneID{}, fmt.Errorf("the pool %s %s doesn't exist in the factory", token1, token2)
	}
	return types.AlkaneIDFromBytes(raw)
}

// sortTokens orders a pair canonically by (block, tx).
func sortTokens(token1, token2 types.AlkaneID) (types.AlkaneID, types.AlkaneID) {
	if token1.Block.Lt(&token2.Block) {
		return token1, token2
	}
	if token1.Block.Eq(&token2.Block) && token1.Tx.Lt(&token2.Tx) {
		return token1, token2
	}
	return token2, token1
}

// decodePath parses the hop-count-prefixed token id list shared by the two
// router swap opcodes, returning the path and the trailing words.
func decodePath(inputs []*uint256.Int) ([]types.AlkaneID, []*uint256.Int, error) {
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("amm: swap path missing")
	}
	count := inputs[0].Uint64()
	if count < 2 {
		return nil, nil, fmt.Errorf("amm: swap path wants at least 2 tokens, got %d", count)
	}
	// The count word is attacker-controlled; bound it by the words actually
	// present before any length arithmetic or allocation.
	if count > uint64(len(inputs))/2 {
		return nil, nil, fmt.Errorf("amm: swap path truncated")
	}
	needed := 1 + int(count)*2
	if len(inputs) < needed {
		return nil, nil, fmt.Errorf("amm: swap path truncated")
	}
	path := make([]types.AlkaneID, 0, count)
	for i := 0; i < int(count); i++ {
		path = append(path, types.AlkaneIDFromWords(inputs[1+i*2], inputs[2+i*2]))
	}
	return path, inputs[needed:], nil
}

func checkDeadline(ctx *types.CallContext, deadline *uint256.Int) error {
	if uint256.NewInt(ctx.Height).Gt(deadline) {
		return ErrExpired
	}
	return nil
}
