package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/core/u128"
)

// Pool opcodes. Mutating entries run under the reentrancy guard.
const (
	PoolOpInit                = 0
	PoolOpAddLiquidity        = 1
	PoolOpRemoveLiquidity     = 2
	PoolOpSwap                = 3
	PoolOpCollectProtocolFees = 10
	PoolOpGetReserves         = 97
	PoolOpGetPriceCumulatives = 98
	PoolOpGetName             = 99
	PoolOpGetPoolDetails      = 999
)

// Pool is one constant-product pair. The reserves, LP supply and oracle
// accumulators live entirely in contract storage; the runtime ledger holds
// the actual token balances.
type Pool struct {
	store Storage
}

// NewPool binds a pool contract to its storage.
func NewPool(store Storage) *Pool {
	return &Pool{store: store}
}

// Execute dispatches one call into the pool.
func (p *Pool) Execute(ctx *types.CallContext, opcode uint64, inputs []*uint256.Int) (*types.CallResponse, error) {
	switch opcode {
	case PoolOpInit:
		return p.initPool(ctx, inputs)
	case PoolOpAddLiquidity:
		return p.addLiquidity(ctx)
	case PoolOpRemoveLiquidity:
		return p.removeLiquidity(ctx)
	case PoolOpSwap:
		return p.swap(ctx, inputs)
	case PoolOpCollectProtocolFees:
		return p.collectProtocolFees(ctx)
	case PoolOpGetReserves:
		return p.getReserves()
	case PoolOpGetPriceCumulatives:
		return p.getPriceCumulatives()
	case PoolOpGetName:
		return p.getName(ctx)
	case PoolOpGetPoolDetails:
		return p.getPoolDetails(ctx)
	default:
		return nil, fmt.Errorf("amm: unknown pool opcode %d", opcode)
	}
}

// initPool bootstraps the pair from the factory's forwarded deposits. Inputs
// are the two token ids; the deposits arrive in the incoming parcel.
func (p *Pool) initPool(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 4 {
		return nil, fmt.Errorf("amm: pool init wants 4 inputs, got %d", len(inputs))
	}
	state, err := loadPool(p.store)
	if err != nil {
		return nil, err
	}
	if state.Initialized {
		return nil, ErrAlreadyInitialized
	}
	tokenA := types.AlkaneIDFromWords(inputs[0], inputs[1])
	tokenB := types.AlkaneIDFromWords(inputs[2], inputs[3])
	if tokenA.Eq(tokenB) {
		return nil, ErrIdenticalTokens
	}
	amountA := ctx.Incoming.ValueOf(tokenA)
	amountB := ctx.Incoming.ValueOf(tokenB)
	if amountA.IsZero() || amountB.IsZero() {
		return nil, ErrZeroInput
	}
	for _, t := range ctx.Incoming.Transfers() {
		if !t.ID.Eq(tokenA) && !t.ID.Eq(tokenB) {
			return nil, ErrUnsupportedAlkane
		}
	}
	liquidity, err := initialLiquidity(amountA, amountB)
	if err != nil {
		return nil, err
	}
	state.TokenA = tokenA.Bytes()
	state.TokenB = tokenB.Bytes()
	state.ReserveA.Set(amountA)
	state.ReserveB.Set(amountB)
	state.TotalSupply.Add(liquidity, minLiquidity)
	state.KLast = u128.MulWide(amountA, amountB)
	state.LastUpdateTime = ctx.Time
	state.Factory = ctx.Caller.Bytes()
	state.Initialized = true
	if err := savePool(p.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, liquidity)
	return resp, nil
}

// addLiquidity consumes every attached amount of the two pool tokens and
// mints LP shares pro rata against the smaller side. Checked deposit ratios
// are the factory router's job; calling here directly donates any imbalance
// to the pool.
func (p *Pool) addLiquidity(ctx *types.CallContext) (*types.CallResponse, error) {
	state, unlock, err := p.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	tokenA, tokenB, err := poolTokens(state)
	if err != nil {
		return nil, err
	}
	var amountA, amountB uint256.Int
	for _, t := range ctx.Incoming.Transfers() {
		switch {
		case t.ID.Eq(tokenA):
			sum, err := u128.Add(&amountA, t.Value)
			if err != nil {
				return nil, err
			}
			amountA.Set(sum)
		case t.ID.Eq(tokenB):
			sum, err := u128.Add(&amountB, t.Value)
			if err != nil {
				return nil, err
			}
			amountB.Set(sum)
		default:
			return nil, ErrUnsupportedAlkane
		}
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, ErrZeroInput
	}
	updateCumulatives(state, ctx.Time)
	if err := skimProtocolFee(state); err != nil {
		return nil, err
	}
	byA, err := u128.MulDiv(state.TotalSupply, &amountA, state.ReserveA)
	if err != nil {
		return nil, err
	}
	byB, err := u128.MulDiv(state.TotalSupply, &amountB, state.ReserveB)
	if err != nil {
		return nil, err
	}
	liquidity := u128.Min(byA, byB)
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	reserveA, err := u128.Add(state.ReserveA, &amountA)
	if err != nil {
		return nil, err
	}
	reserveB, err := u128.Add(state.ReserveB, &amountB)
	if err != nil {
		return nil, err
	}
	supply, err := u128.Add(state.TotalSupply, liquidity)
	if err != nil {
		return nil, err
	}
	state.ReserveA = reserveA
	state.ReserveB = reserveB
	state.TotalSupply = supply
	state.KLast = u128.MulWide(reserveA, reserveB)
	if err := savePool(p.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, liquidity)
	return resp, nil
}

// removeLiquidity burns the attached LP shares and pays out the floored pro
// rata share of each reserve.
func (p *Pool) removeLiquidity(ctx *types.CallContext) (*types.CallResponse, error) {
	state, unlock, err := p.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	tokenA, tokenB, err := poolTokens(state)
	if err != nil {
		return nil, err
	}
	for _, t := range ctx.Incoming.Transfers() {
		if !t.ID.Eq(ctx.Myself) {
			return nil, ErrUnsupportedAlkane
		}
	}
	liquidity := ctx.Incoming.ValueOf(ctx.Myself)
	if liquidity.IsZero() {
		return nil, ErrZeroInput
	}
	if liquidity.Gt(state.TotalSupply) {
		liquidity = new(uint256.Int).Set(state.TotalSupply)
	}
	updateCumulatives(state, ctx.Time)
	if err := skimProtocolFee(state); err != nil {
		return nil, err
	}
	outA, err := u128.MulDiv(liquidity, state.ReserveA, state.TotalSupply)
	if err != nil {
		return nil, err
	}
	outB, err := u128.MulDiv(liquidity, state.ReserveB, state.TotalSupply)
	if err != nil {
		return nil, err
	}
	if outA.IsZero() && outB.IsZero() {
		return nil, ErrInsufficientLiquidityBurned
	}
	state.ReserveA.Sub(state.ReserveA, outA)
	state.ReserveB.Sub(state.ReserveB, outB)
	state.TotalSupply.Sub(state.TotalSupply, liquidity)
	state.KLast = u128.MulWide(state.ReserveA, state.ReserveB)
	if err := savePool(p.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(tokenA, outA)
	resp.Alkanes.Pay(tokenB, outB)
	return resp, nil
}

// swap is the low-level flash-capable exchange. Outputs are paid
// optimistically; when a callback target is supplied it runs with the
// outputs already delivered and whatever it returns counts toward the
// invariant check. Inputs: amountAOut, amountBOut, toBlock, toTx, then the
// raw words forwarded to the callback.
func (p *Pool) swap(ctx *types.CallContext, inputs []*uint256.Int) (*types.CallResponse, error) {
	if len(inputs) < 4 {
		return nil, fmt.Errorf("amm: pool swap wants at least 4 inputs, got %d", len(inputs))
	}
	state, unlock, err := p.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	tokenA, tokenB, err := poolTokens(state)
	if err != nil {
		return nil, err
	}
	for _, t := range ctx.Incoming.Transfers() {
		if !t.ID.Eq(tokenA) && !t.ID.Eq(tokenB) {
			return nil, ErrUnsupportedAlkane
		}
	}
	outA := new(uint256.Int).Set(inputs[0])
	outB := new(uint256.Int).Set(inputs[1])
	if outA.IsZero() && outB.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if !outA.Lt(state.ReserveA) || !outB.Lt(state.ReserveB) {
		return nil, ErrInsufficientLiquidity
	}
	updateCumulatives(state, ctx.Time)

	to := types.AlkaneIDFromWords(inputs[2], inputs[3])
	callback := !to.IsZero() && !to.Eq(ctx.Myself)
	if callback {
		var payout types.TransferParcel
		payout.Pay(tokenA, outA)
		payout.Pay(tokenB, outB)
		if _, err := ctx.Host.Call(to, inputs[4:], payout); err != nil {
			return nil, err
		}
	}

	balanceA := new(uint256.Int).Set(ctx.Host.Balance(ctx.Myself, tokenA))
	balanceB := new(uint256.Int).Set(ctx.Host.Balance(ctx.Myself, tokenB))
	if !callback {
		// Outputs leave with the response, so they are still on the ledger.
		balanceA.Sub(balanceA, outA)
		balanceB.Sub(balanceB, outB)
	}
	if err := checkInvariant(state, balanceA, balanceB, outA, outB); err != nil {
		return nil, err
	}
	if !u128.Fits(balanceA) || !u128.Fits(balanceB) {
		return nil, u128.ErrAddOverflow
	}
	state.ReserveA.Set(balanceA)
	state.ReserveB.Set(balanceB)
	if err := savePool(p.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	if !callback {
		resp.Alkanes.Pay(tokenA, outA)
		resp.Alkanes.Pay(tokenB, outB)
	}
	return resp, nil
}

// collectProtocolFees hands the accrued protocol LP shares to the factory.
func (p *Pool) collectProtocolFees(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadPool(p.store)
	if err != nil {
		return nil, err
	}
	if !state.Initialized {
		return nil, ErrNotInitialized
	}
	factory, err := types.AlkaneIDFromBytes(state.Factory)
	if err != nil {
		return nil, err
	}
	if !ctx.Caller.Eq(factory) {
		return nil, ErrNotFactory
	}
	owed := new(uint256.Int).Set(state.FeesOwed)
	state.FeesOwed.Clear()
	if err := savePool(p.store, state); err != nil {
		return nil, err
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(ctx.Myself, owed)
	return resp, nil
}

func (p *Pool) getReserves() (*types.CallResponse, error) {
	state, err := loadPool(p.store)
	if err != nil {
		return nil, err
	}
	data := types.AppendU128(nil, state.ReserveA)
	data = types.AppendU128(data, state.ReserveB)
	data = types.AppendU128(data, state.TotalSupply)
	return &types.CallResponse{Data: data}, nil
}

func (p *Pool) getPriceCumulatives() (*types.CallResponse, error) {
	state, err := loadPool(p.store)
	if err != nil {
		return nil, err
	}
	data := types.AppendU256(nil, state.PriceACumulative)
	data = types.AppendU256(data, state.PriceBCumulative)
	return &types.CallResponse{Data: data}, nil
}

func (p *Pool) getName(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadPool(p.store)
	if err != nil {
		return nil, err
	}
	if !state.Initialized {
		return nil, ErrNotInitialized
	}
	tokenA, tokenB, err := poolTokens(state)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s / %s LP", tokenName(ctx, tokenA), tokenName(ctx, tokenB))
	return &types.CallResponse{Data: []byte(name)}, nil
}

func (p *Pool) getPoolDetails(ctx *types.CallContext) (*types.CallResponse, error) {
	state, err := loadPool(p.store)
	if err != nil {
		return nil, err
	}
	if !state.Initialized {
		return nil, ErrNotInitialized
	}
	nameResp, err := p.getName(ctx)
	if err != nil {
		return nil, err
	}
	data := append([]byte{}, state.TokenA...)
	data = append(data, state.TokenB...)
	data = types.AppendU128(data, state.ReserveA)
	data = types.AppendU128(data, state.ReserveB)
	data = types.AppendU128(data, state.TotalSupply)
	data = append(data, nameResp.Data...)
	return &types.CallResponse{Data: data}, nil
}

// lock loads the state under the reentrancy guard. The returned release
// function clears the flag on every exit path; a revert discards the write
// anyway, but the callback path inside the same call must observe it set.
func (p *Pool) lock() (*storedPool, func(), error) {
	state, err := loadPool(p.store)
	if err != nil {
		return nil, nil, err
	}
	if !state.Initialized {
		return nil, nil, ErrNotInitialized
	}
	if state.Locked {
		return nil, nil, ErrLocked
	}
	state.Locked = true
	if err := savePool(p.store, state); err != nil {
		return nil, nil, err
	}
	unlock := func() {
		current, err := loadPool(p.store)
		if err != nil {
			return
		}
		current.Locked = false
		_ = savePool(p.store, current)
	}
	return state, unlock, nil
}

func poolTokens(state *storedPool) (types.AlkaneID, types.AlkaneID, error) {
	tokenA, err := state.tokenAID()
	if err != nil {
		return types.AlkaneID{}, types.AlkaneID{}, err
	}
	tokenB, err := state.tokenBID()
	if err != nil {
		return types.AlkaneID{}, types.AlkaneID{}, err
	}
	return tokenA, tokenB, nil
}

// tokenName asks the token contract for its name, falling back to the id
// when the token does not answer.
func tokenName(ctx *types.CallContext, token types.AlkaneID) string {
	if ctx.Host == nil {
		return token.String()
	}
	resp, err := ctx.Host.Call(token, []*uint256.Int{uint256.NewInt(PoolOpGetName)}, types.TransferParcel{})
	if err != nil || resp == nil || len(resp.Data) == 0 {
		return token.String()
	}
	return string(resp.Data)
}
