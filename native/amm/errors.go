package amm

import "errors"

// Revert strings form the external contract of the pool and factory;
// integrators match on the exact text, so they stay stable.
var (
	ErrAlreadyInitialized          = errors.New("already initialized")
	ErrIdenticalTokens             = errors.New("tokens to create the pool cannot be the same")
	ErrZeroInput                   = errors.New("input amount cannot be zero")
	ErrPoolExists                  = errors.New("pool already exists")
	ErrInsufficientLiquidityMinted = errors.New("INSUFFICIENT_LIQUIDITY_MINTED")
	ErrInsufficientLiquidityBurned = errors.New("INSUFFICIENT_LIQUIDITY_BURNED")
	ErrInsufficientAAmount         = errors.New("INSUFFICIENT_A_AMOUNT")
	ErrInsufficientBAmount         = errors.New("INSUFFICIENT_B_AMOUNT")
	ErrInsufficientOutput          = errors.New("INSUFFICIENT_OUTPUT_AMOUNT")
	ErrInsufficientLiquidity       = errors.New("INSUFFICIENT_LIQUIDITY")
	ErrExcessiveInput              = errors.New("EXCESSIVE_INPUT_AMOUNT")
	ErrExpired                     = errors.New("EXPIRED deadline")
	ErrKNotIncreasing              = errors.New("K is not increasing")
	ErrLocked                      = errors.New("LOCKED")
	ErrUnsupportedAlkane           = errors.New("unsupported alkane sent to pool")
	ErrNotFactory                  = errors.New("caller is not the factory")
	ErrNotInitialized              = errors.New("pool is not initialized")
)
