package amm_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/native/amm"
	"alkadex/native/common"
	"alkadex/native/token"
	"alkadex/storage"
	"alkadex/vm"
)

const farDeadline = 2_000_000

type routerEnv struct {
	rt      *vm.Runtime
	user    types.AlkaneID
	tokenA  types.AlkaneID
	tokenB  types.AlkaneID
	factory types.AlkaneID
	pool    types.AlkaneID
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	rt := vm.NewRuntime(storage.NewMemDB())
	rt.SetBlock(840_000, 1_700_000_000)
	rt.RegisterTemplate(amm.PoolTemplate, func(store *vm.State) vm.Contract {
		return amm.NewPool(store)
	})
	rt.RegisterTemplate("amm/factory", func(store *vm.State) vm.Contract {
		return amm.NewFactory(store)
	})
	rt.RegisterTemplate("token/a", func(store *vm.State) vm.Contract {
		return token.New("COIN A")(store)
	})
	rt.RegisterTemplate("token/b", func(store *vm.State) vm.Contract {
		return token.New("COIN B")(store)
	})

	env := &routerEnv{rt: rt, user: types.NewAlkaneID(1, 1)}
	env.tokenA = env.deploy(t, "token/a",
		[]*uint256.Int{uint256.NewInt(token.OpInitialize), uint256.NewInt(1_000_000_000)}, types.TransferParcel{})
	env.tokenB = env.deploy(t, "token/b",
		[]*uint256.Int{uint256.NewInt(token.OpInitialize), uint256.NewInt(1_000_000_000)}, types.TransferParcel{})
	env.factory = env.deploy(t, "amm/factory",
		[]*uint256.Int{uint256.NewInt(amm.FactoryOpInitialize)}, types.TransferParcel{})
	return env
}

func (env *routerEnv) deploy(t *testing.T, template string, inputs []*uint256.Int, transfers types.TransferParcel) types.AlkaneID {
	t.Helper()
	id, _, err := env.rt.Deploy(env.user, template, inputs, transfers)
	if err != nil {
		t.Fatalf("deploy %s: %v", template, err)
	}
	return id
}

func (env *routerEnv) call(t *testing.T, inputs []*uint256.Int, transfers types.TransferParcel) *types.CallResponse {
	t.Helper()
	resp, err := env.rt.Execute(env.user, env.factory, inputs, transfers)
	if err != nil {
		t.Fatalf("factory call: %v", err)
	}
	return resp
}

func (env *routerEnv) balance(t *testing.T, token types.AlkaneID) uint64 {
	t.Helper()
	balance, err := env.rt.Balance(env.user, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance.Uint64()
}

// createPool registers the A/B pair seeded with a million of each side.
func (env *routerEnv) createPool(t *testing.T) {
	t.Helper()
	deposit := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(1_000_000)},
		types.Transfer{ID: env.tokenB, Value: uint256.NewInt(1_000_000)},
	)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpCreateNewPool),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(1_000_000), uint256.NewInt(1_000_000),
	}, deposit)

	resp := env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpFindExistingPoolID),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
	}, types.TransferParcel{})
	pool, err := types.AlkaneIDFromBytes(resp.Data)
	if err != nil {
		t.Fatalf("decode pool id: %v", err)
	}
	env.pool = pool
}

func TestCreatePoolMintsInitialShares(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	if got := env.balance(t, env.pool); got != 999_000 {
		t.Fatalf("expected sqrt-locked share mint of 999000, got %d", got)
	}
	if got := env.balance(t, env.tokenA); got != 999_000_000 {
		t.Fatalf("deposit not debited, token A balance %d", got)
	}

	resp := env.call(t, []*uint256.Int{uint256.NewInt(amm.FactoryOpGetNumPools)}, types.TransferParcel{})
	count, err := types.U128FromBytes(resp.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if count.Uint64() != 1 {
		t.Fatalf("expected 1 registered pool, got %s", count.Dec())
	}

	// Lookup works in either token order.
	resp = env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpFindExistingPoolID),
		&env.tokenB.Block, &env.tokenB.Tx,
		&env.tokenA.Block, &env.tokenA.Tx,
	}, types.TransferParcel{})
	reversed, err := types.AlkaneIDFromBytes(resp.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reversed.Eq(env.pool) {
		t.Fatalf("pair lookup should be order independent")
	}

	deposit := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(1000)},
		types.Transfer{ID: env.tokenB, Value: uint256.NewInt(1000)},
	)
	_, err = env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpCreateNewPool),
		&env.tokenB.Block, &env.tokenB.Tx,
		&env.tokenA.Block, &env.tokenA.Tx,
		uint256.NewInt(1000), uint256.NewInt(1000),
	}, deposit)
	if !errors.Is(err, amm.ErrPoolExists) {
		t.Fatalf("duplicate pair must be rejected, got %v", err)
	}
}

func TestRouterAddAndRemoveLiquidity(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	// The optimal counter amount is quoted off the reserves; the surplus of
	// token B comes back.
	deposit := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(100_000)},
		types.Transfer{ID: env.tokenB, Value: uint256.NewInt(150_000)},
	)
	before := env.balance(t, env.tokenB)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpAddLiquidity),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(100_000), uint256.NewInt(150_000),
		uint256.NewInt(90_000), uint256.NewInt(90_000),
		uint256.NewInt(farDeadline),
	}, deposit)
	if got := env.balance(t, env.pool); got != 999_000+100_000 {
		t.Fatalf("expected 100000 new shares, got %d", got)
	}
	if got := env.balance(t, env.tokenB); got != before-100_000 {
		t.Fatalf("surplus token B should be refunded, spent %d", before-got)
	}

	// Withdraw half the fresh shares: the pool is balanced so the payout is
	// exactly pro rata.
	withdraw := types.NewTransferParcel(
		types.Transfer{ID: env.pool, Value: uint256.NewInt(50_000)},
	)
	beforeA := env.balance(t, env.tokenA)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpRemoveLiquidity),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(50_000),
		uint256.NewInt(50_000), uint256.NewInt(50_000),
		uint256.NewInt(farDeadline),
	}, withdraw)
	if got := env.balance(t, env.tokenA); got != beforeA+50_000 {
		t.Fatalf("expected 50000 of token A back, got %d", got-beforeA)
	}
	if got := env.balance(t, env.pool); got != 999_000+50_000 {
		t.Fatalf("shares should burn, got %d", got)
	}
}

func TestRouterAddLiquidityChecks(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	deposit := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(100_000)},
		types.Transfer{ID: env.tokenB, Value: uint256.NewInt(100_000)},
	)
	_, err := env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpAddLiquidity),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(100_000), uint256.NewInt(100_000),
		uint256.NewInt(0), uint256.NewInt(0),
		uint256.NewInt(839_999),
	}, deposit)
	if !errors.Is(err, amm.ErrExpired) {
		t.Fatalf("stale deadline must be rejected, got %v", err)
	}

	// Quoting 50000 of B against a balanced pool needs only 50000 of A, and
	// a floor of 60000 on the A side cannot hold.
	_, err = env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpAddLiquidity),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(100_000), uint256.NewInt(50_000),
		uint256.NewInt(60_000), uint256.NewInt(0),
		uint256.NewInt(farDeadline),
	}, deposit)
	if !errors.Is(err, amm.ErrInsufficientAAmount) {
		t.Fatalf("expected A-side floor violation, got %v", err)
	}
}

func TestRouterRemoveLiquidityMinimums(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)
	withdraw := types.NewTransferParcel(
		types.Transfer{ID: env.pool, Value: uint256.NewInt(50_000)},
	)
	_, err := env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpRemoveLiquidity),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(50_000),
		uint256.NewInt(50_001), uint256.NewInt(0),
		uint256.NewInt(farDeadline),
	}, withdraw)
	if !errors.Is(err, amm.ErrInsufficientAAmount) {
		t.Fatalf("payout under the floor must revert, got %v", err)
	}
	// A failed withdrawal keeps the shares with the caller.
	if got := env.balance(t, env.pool); got != 999_000 {
		t.Fatalf("shares must survive the revert, got %d", got)
	}
}

func TestRouterExactInSwap(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	payment := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(10_000)},
	)
	beforeB := env.balance(t, env.tokenB)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapExactTokensForTokens),
		uint256.NewInt(2),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(10_000), uint256.NewInt(9_851),
		uint256.NewInt(farDeadline),
	}, payment)
	if got := env.balance(t, env.tokenB); got != beforeB+9_851 {
		t.Fatalf("expected 9851 of token B, got %d", got-beforeB)
	}

	_, err := env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapExactTokensForTokens),
		uint256.NewInt(2),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(10_000), uint256.NewInt(100_000),
		uint256.NewInt(farDeadline),
	}, payment)
	if !errors.Is(err, amm.ErrInsufficientOutput) {
		t.Fatalf("unreachable min out must revert, got %v", err)
	}
}

func TestRouterExactOutSwap(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	payment := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(10_000)},
	)
	_, err := env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapTokensForExactTokens),
		uint256.NewInt(2),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(9_851), uint256.NewInt(9_999),
		uint256.NewInt(farDeadline),
	}, payment)
	if !errors.Is(err, amm.ErrExcessiveInput) {
		t.Fatalf("input over the ceiling must revert, got %v", err)
	}

	beforeA := env.balance(t, env.tokenA)
	beforeB := env.balance(t, env.tokenB)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapTokensForExactTokens),
		uint256.NewInt(2),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(9_851), uint256.NewInt(10_000),
		uint256.NewInt(farDeadline),
	}, payment)
	if got := env.balance(t, env.tokenA); got != beforeA-10_000 {
		t.Fatalf("expected to pay exactly 10000, paid %d", beforeA-got)
	}
	if got := env.balance(t, env.tokenB); got != beforeB+9_851 {
		t.Fatalf("expected exactly 9851 out, got %d", got-beforeB)
	}
}

func TestRouterMultiHopSwap(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	env.rt.RegisterTemplate("token/c", func(store *vm.State) vm.Contract {
		return token.New("COIN C")(store)
	})
	tokenC := env.deploy(t, "token/c",
		[]*uint256.Int{uint256.NewInt(token.OpInitialize), uint256.NewInt(1_000_000_000)}, types.TransferParcel{})
	deposit := types.NewTransferParcel(
		types.Transfer{ID: env.tokenB, Value: uint256.NewInt(1_000_000)},
		types.Transfer{ID: tokenC, Value: uint256.NewInt(1_000_000)},
	)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpCreateNewPool),
		&env.tokenB.Block, &env.tokenB.Tx,
		&tokenC.Block, &tokenC.Tx,
		uint256.NewInt(1_000_000), uint256.NewInt(1_000_000),
	}, deposit)

	payment := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(10_000)},
	)
	beforeC := env.balance(t, tokenC)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapExactTokensForTokens),
		uint256.NewInt(3),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		&tokenC.Block, &tokenC.Tx,
		uint256.NewInt(10_000), uint256.NewInt(9_000),
		uint256.NewInt(farDeadline),
	}, payment)
	// 10000 -> 9851 through the first pool, 9851 -> 9706 through the second.
	if got := env.balance(t, tokenC); got != beforeC+9_706 {
		t.Fatalf("expected 9706 of token C after two hops, got %d", got-beforeC)
	}
}

func TestCollectFeesEndToEnd(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	// A swap grows k; the next liquidity event skims the protocol share.
	payment := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(10_000)},
	)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpSwapExactTokensForTokens),
		uint256.NewInt(2),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(10_000), uint256.NewInt(0),
		uint256.NewInt(farDeadline),
	}, payment)
	deposit := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(101_000)},
		types.Transfer{ID: env.tokenB, Value: uint256.NewInt(101_000)},
	)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpAddLiquidity),
		&env.tokenA.Block, &env.tokenA.Tx,
		&env.tokenB.Block, &env.tokenB.Tx,
		uint256.NewInt(101_000), uint256.NewInt(101_000),
		uint256.NewInt(0), uint256.NewInt(0),
		uint256.NewInt(farDeadline),
	}, deposit)

	// The capability token is required.
	_, err := env.rt.Execute(env.user, env.factory, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpCollectFees),
		&env.pool.Block, &env.pool.Tx,
	}, types.TransferParcel{})
	if !errors.Is(err, common.ErrAuthTokenMissing) {
		t.Fatalf("expected missing auth token, got %v", err)
	}

	before := env.balance(t, env.pool)
	auth := types.NewTransferParcel(
		types.Transfer{ID: env.factory, Value: uint256.NewInt(1)},
	)
	env.call(t, []*uint256.Int{
		uint256.NewInt(amm.FactoryOpCollectFees),
		&env.pool.Block, &env.pool.Tx,
	}, auth)
	// sqrt(k) moved from 1000000 to 1000025 on a million shares; the
	// protocol's 40% cut of that growth rounds down to 9 shares.
	if got := env.balance(t, env.pool); got != before+9 {
		t.Fatalf("expected 9 fee shares, got %d", got-before)
	}
	if got := env.balance(t, env.factory); got != 1 {
		t.Fatalf("capability token must return to the caller, got %d", got)
	}
}

func TestPoolRejectsDirectFeeCollection(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)
	_, err := env.rt.Execute(env.user, env.pool,
		[]*uint256.Int{uint256.NewInt(amm.PoolOpCollectProtocolFees)}, types.TransferParcel{})
	if !errors.Is(err, amm.ErrNotFactory) {
		t.Fatalf("only the factory may collect, got %v", err)
	}
}

// borrower exercises the flash path. On its callback opcode it attempts a
// reentrant pool call, expects the guard to reject it, then repays the
// borrowed amount plus fee from its prefunded balance. Every other opcode,
// including the init call and prefunding transfers, is a no-op.
type borrower struct {
	repayToken types.AlkaneID
	repay      uint64
}

const borrowerOpFlashCallback = 77

func (b *borrower) Execute(ctx *types.CallContext, opcode uint64, inputs []*uint256.Int) (*types.CallResponse, error) {
	if opcode != borrowerOpFlashCallback {
		return &types.CallResponse{}, nil
	}
	_, err := ctx.Host.Call(ctx.Caller, []*uint256.Int{
		uint256.NewInt(amm.PoolOpAddLiquidity),
	}, ctx.Incoming)
	if !errors.Is(err, amm.ErrLocked) {
		return nil, errors.New("reentrant call should hit the guard")
	}
	resp := &types.CallResponse{}
	resp.Alkanes.Pay(b.repayToken, uint256.NewInt(b.repay))
	return resp, nil
}

func TestFlashSwapThroughRuntime(t *testing.T) {
	env := newRouterEnv(t)
	env.createPool(t)

	env.rt.RegisterTemplate("borrower", func(store *vm.State) vm.Contract {
		return &borrower{repayToken: env.tokenA, repay: 1_006}
	})
	borrowerID, _, err := env.rt.Deploy(env.user, "borrower",
		[]*uint256.Int{uint256.NewInt(0)}, types.TransferParcel{})
	if err != nil {
		t.Fatalf("deploy borrower: %v", err)
	}
	// Prefund the borrower so it can cover the flash fee.
	funding := types.NewTransferParcel(
		types.Transfer{ID: env.tokenA, Value: uint256.NewInt(10_000)},
	)
	if _, err := env.rt.Execute(env.user, borrowerID,
		[]*uint256.Int{uint256.NewInt(0)}, funding); err != nil {
		t.Fatalf("prefund borrower: %v", err)
	}

	// Borrow 1000 of token A with a callback into the borrower.
	_, err = env.rt.Execute(env.user, env.pool, []*uint256.Int{
		uint256.NewInt(amm.PoolOpSwap),
		uint256.NewInt(1_000), uint256.NewInt(0),
		&borrowerID.Block, &borrowerID.Tx,
		uint256.NewInt(borrowerOpFlashCallback),
	}, types.TransferParcel{})
	if err != nil {
		t.Fatalf("flash swap: %v", err)
	}
	balance, err := env.rt.Balance(borrowerID, env.tokenA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	// Prefund plus the borrowed 1000, minus the 1006 repayment.
	if balance.Uint64() != 9_994 {
		t.Fatalf("expected the borrower to net -6, got %d", balance.Uint64())
	}
}
