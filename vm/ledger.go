package vm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/storage"
)

var balancePrefix = []byte("vm/balance/")

func balanceKey(owner, token types.AlkaneID) []byte {
	buf := make([]byte, 0, len(balancePrefix)+64)
	buf = append(buf, balancePrefix...)
	buf = append(buf, owner.Bytes()...)
	return append(buf, token.Bytes()...)
}

func getBalance(db storage.Database, owner, token types.AlkaneID) (*uint256.Int, error) {
	raw, err := db.Get(balanceKey(owner, token))
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return types.U256FromBytes(raw)
}

func setBalance(db storage.Database, owner, token types.AlkaneID, value *uint256.Int) error {
	return db.Put(balanceKey(owner, token), types.AppendU256(nil, value))
}

// debit removes a parcel from owner's balances. A transfer of the owner's
// own token is a mint: contracts can always emit their own alkane, so no
// balance is required or reduced.
func debit(db storage.Database, owner types.AlkaneID, parcel types.TransferParcel) error {
	for _, t := range parcel.Transfers() {
		if t.ID.Eq(owner) {
			continue
		}
		balance, err := getBalance(db, owner, t.ID)
		if err != nil {
			return err
		}
		if balance.Lt(t.Value) {
			return fmt.Errorf("vm: balance underflow: %s holds %s of %s, needs %s",
				owner, balance.Dec(), t.ID, t.Value.Dec())
		}
		if err := setBalance(db, owner, t.ID, balance.Sub(balance, t.Value)); err != nil {
			return err
		}
	}
	return nil
}

// credit adds a parcel to owner's balances. A contract receiving its own
// token is a burn: the units leave circulation instead of accruing.
func credit(db storage.Database, owner types.AlkaneID, parcel types.TransferParcel) error {
	for _, t := range parcel.Transfers() {
		if t.ID.Eq(owner) {
			continue
		}
		balance, err := getBalance(db, owner, t.ID)
		if err != nil {
			return err
		}
		if err := setBalance(db, owner, t.ID, balance.Add(balance, t.Value)); err != nil {
			return err
		}
	}
	return nil
}
