package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"alkadex/core/types"
	"alkadex/storage"
)

var contractPrefix = []byte("vm/contract/")

// State is the keyed, RLP-serialized view of one contract's storage. It
// satisfies the Storage interfaces the native packages declare.
type State struct {
	db     storage.Database
	prefix []byte
}

// NewState binds a contract id to a namespace of the database.
func NewState(db storage.Database, owner types.AlkaneID) *State {
	prefix := make([]byte, 0, len(contractPrefix)+33)
	prefix = append(prefix, contractPrefix...)
	prefix = append(prefix, owner.Bytes()...)
	prefix = append(prefix, '/')
	return &State{db: db, prefix: prefix}
}

func (s *State) key(key []byte) []byte {
	buf := make([]byte, 0, len(s.prefix)+len(key))
	buf = append(buf, s.prefix...)
	return append(buf, key...)
}

// KVGet decodes the stored value into out, reporting whether the key exists.
func (s *State) KVGet(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(s.key(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("vm: decode state %q: %w", key, err)
	}
	return true, nil
}

// KVPut serializes value under the contract's namespace.
func (s *State) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("vm: encode state %q: %w", key, err)
	}
	return s.db.Put(s.key(key), raw)
}
