package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
)

// Storage abstracts the per-contract keyed state the runtime provides. Values
// are serialized by the implementation; contracts only see typed records.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// storedPool is the persisted record backing one pool instance.
type storedPool struct {
	TokenA           []byte
	TokenB           []byte
	ReserveA         *uint256.Int
	ReserveB         *uint256.Int
	TotalSupply      *uint256.Int
	KLast            *uint256.Int
	PriceACumulative *uint256.Int
	PriceBCumulative *uint256.Int
	LastUpdateTime   uint64
	FeesOwed         *uint256.Int
	Factory          []byte
	Initialized      bool
	Locked           bool
}

func newStoredPool() *storedPool {
	return &storedPool{
		ReserveA:         new(uint256.Int),
		ReserveB:         new(uint256.Int),
		TotalSupply:      new(uint256.Int),
		KLast:            new(uint256.Int),
		PriceACumulative: new(uint256.Int),
		PriceBCumulative: new(uint256.Int),
		FeesOwed:         new(uint256.Int),
	}
}

// normalize backfills nil numeric fields after decoding.
func (s *storedPool) normalize() {
	for _, field := range []**uint256.Int{
		&s.ReserveA, &s.ReserveB, &s.TotalSupply, &s.KLast,
		&s.PriceACumulative, &s.PriceBCumulative, &s.FeesOwed,
	} {
		if *field == nil {
			*field = new(uint256.Int)
		}
	}
}

func (s *storedPool) tokenAID() (types.AlkaneID, error) {
	return types.AlkaneIDFromBytes(s.TokenA)
}

func (s *storedPool) tokenBID() (types.AlkaneID, error) {
	return types.AlkaneIDFromBytes(s.TokenB)
}

func loadPool(store Storage) (*storedPool, error) {
	state := newStoredPool()
	ok, err := store.KVGet(poolStateKey, state)
	if err != nil {
		return nil, fmt.Errorf("amm: load pool state: %w", err)
	}
	if !ok {
		return newStoredPool(), nil
	}
	state.normalize()
	return state, nil
}

func savePool(store Storage, state *storedPool) error {
	if err := store.KVPut(poolStateKey, state); err != nil {
		return fmt.Errorf("amm: save pool state: %w", err)
	}
	return nil
}

// storedFactory is the persisted record backing the factory instance.
type storedFactory struct {
	Initialized bool
	NumPools    uint64
	AuthToken   []byte
}

// storedPoolEntry is one registry row in the factory's pool list.
type storedPoolEntry struct {
	TokenA []byte
	TokenB []byte
	Pool   []byte
}

func loadFactory(store Storage) (*storedFactory, error) {
	state := &storedFactory{}
	ok, err := store.KVGet(factoryStateKey, state)
	if err != nil {
		return nil, fmt.Errorf("amm: load factory state: %w", err)
	}
	if !ok {
		return &storedFactory{}, nil
	}
	return state, nil
}

func saveFactory(store Storage, state *storedFactory) error {
	if err := store.KVPut(factoryStateKey, state); err != nil {
		return fmt.Errorf("amm: save factory state: %w", err)
	}
	return nil
}
