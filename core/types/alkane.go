package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// AlkaneID identifies a token or contract instance on the metaprotocol.
// Both words are unsigned 128-bit values carried in uint256 storage; the
// type is comparable and safe to use as a map key.
type AlkaneID struct {
	Block uint256.Int
	Tx    uint256.Int
}

// NewAlkaneID builds an identifier from small block/tx words.
func NewAlkaneID(block, tx uint64) AlkaneID {
	var id AlkaneID
	id.Block.SetUint64(block)
	id.Tx.SetUint64(tx)
	return id
}

// AlkaneIDFromWords builds an identifier from two decoded call inputs.
func AlkaneIDFromWords(block, tx *uint256.Int) AlkaneID {
	var id AlkaneID
	if block != nil {
		id.Block.Set(block)
	}
	if tx != nil {
		id.Tx.Set(tx)
	}
	return id
}

// Eq reports whether two identifiers name the same instance.
func (id AlkaneID) Eq(other AlkaneID) bool {
	return id.Block.Eq(&other.Block) && id.Tx.Eq(&other.Tx)
}

// IsZero reports whether the identifier is the all-zero sentinel.
func (id AlkaneID) IsZero() bool {
	return id.Block.IsZero() && id.Tx.IsZero()
}

func (id AlkaneID) String() string {
	return fmt.Sprintf("AlkaneId { block: %s, tx: %s }", id.Block.Dec(), id.Tx.Dec())
}

// Bytes encodes the identifier as two little-endian u128 words (32 bytes).
func (id AlkaneID) Bytes() []byte {
	buf := make([]byte, 0, 32)
	buf = AppendU128(buf, &id.Block)
	buf = AppendU128(buf, &id.Tx)
	return buf
}

// AlkaneIDFromBytes decodes the 32-byte little-endian form produced by Bytes.
func AlkaneIDFromBytes(data []byte) (AlkaneID, error) {
	if len(data) != 32 {
		return AlkaneID{}, fmt.Errorf("alkane id: want 32 bytes, got %d", len(data))
	}
	var id AlkaneID
	block, err := U128FromBytes(data[:16])
	if err != nil {
		return AlkaneID{}, err
	}
	tx, err := U128FromBytes(data[16:])
	if err != nil {
		return AlkaneID{}, err
	}
	id.Block.Set(block)
	id.Tx.Set(tx)
	return id, nil
}

// Transfer is a single (token, amount) movement attached to a call or a
// response.
type Transfer struct {
	ID    AlkaneID
	Value *uint256.Int
}

// TransferParcel is the ordered list of transfers attached to a call. Order
// is preserved and equal token ids are not coalesced; holders that care about
// totals sum the parcel themselves.
type TransferParcel struct {
	transfers []Transfer
}

// NewTransferParcel builds a parcel from the given transfers.
func NewTransferParcel(transfers ...Transfer) TransferParcel {
	p := TransferParcel{}
	for _, t := range transfers {
		p.Pay(t.ID, t.Value)
	}
	return p
}

// Pay appends a transfer to the parcel. Nil and zero values are dropped so
// refund paths can pay computed remainders unconditionally.
func (p *TransferParcel) Pay(id AlkaneID, value *uint256.Int) {
	if value == nil || value.IsZero() {
		return
	}
	p.transfers = append(p.transfers, Transfer{ID: id, Value: new(uint256.Int).Set(value)})
}

// PayAll appends every transfer of another parcel.
func (p *TransferParcel) PayAll(other TransferParcel) {
	for _, t := range other.transfers {
		p.Pay(t.ID, t.Value)
	}
}

// Transfers returns the parcel contents in attachment order.
func (p TransferParcel) Transfers() []Transfer {
	return p.transfers
}

// Len returns the number of transfers in the parcel.
func (p TransferParcel) Len() int {
	return len(p.transfers)
}

// ValueOf sums every transfer of the given token. The sum is unchecked u256;
// callers needing 128-bit bounds validate the result themselves.
func (p TransferParcel) ValueOf(id AlkaneID) *uint256.Int {
	total := new(uint256.Int)
	for _, t := range p.transfers {
		if t.ID.Eq(id) {
			total.Add(total, t.Value)
		}
	}
	return total
}
