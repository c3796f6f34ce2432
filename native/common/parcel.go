package common

import (
	"errors"

	"github.com/holiman/uint256"

	"alkadex/core/types"
	"alkadex/core/u128"
)

var (
	ErrInsufficientTokens = errors.New("Insufficient tokens")
	ErrAuthTokenMissing   = errors.New("Auth token is not in incoming alkanes")
)

// Collect withdraws exactly need of token from the incoming parcel and
// returns the refund parcel: every unmatched transfer plus any matched
// excess. Attached tokens are never implicitly retained; the caller must
// hand the refund back in its response.
func Collect(incoming types.TransferParcel, token types.AlkaneID, need *uint256.Int) (types.TransferParcel, error) {
	return CollectAll(incoming, types.Transfer{ID: token, Value: need})
}

// CollectAll withdraws each wanted (token, amount) from the incoming parcel.
// Wanted token ids must be distinct. Matched amounts are summed with checked
// addition; a shortfall on any wanted token fails the whole collection.
func CollectAll(incoming types.TransferParcel, wants ...types.Transfer) (types.TransferParcel, error) {
	totals := make([]*uint256.Int, len(wants))
	for i := range totals {
		totals[i] = new(uint256.Int)
	}
	var refund types.TransferParcel
	for _, t := range incoming.Transfers() {
		matched := false
		for i, w := range wants {
			if t.ID.Eq(w.ID) {
				sum, err := u128.Add(totals[i], t.Value)
				if err != nil {
					return types.TransferParcel{}, err
				}
				totals[i] = sum
				matched = true
				break
			}
		}
		if !matched {
			refund.Pay(t.ID, t.Value)
		}
	}
	for i, w := range wants {
		if totals[i].Lt(w.Value) {
			return types.TransferParcel{}, ErrInsufficientTokens
		}
		excess := new(uint256.Int).Sub(totals[i], w.Value)
		refund.Pay(wants[i].ID, excess)
	}
	return refund, nil
}

// RequireAuth checks that at least one unit of the capability token is
// attached to the call. The unit stays in the parcel; callers return it with
// their payout.
func RequireAuth(incoming types.TransferParcel, token types.AlkaneID) error {
	if incoming.ValueOf(token).IsZero() {
		return ErrAuthTokenMissing
	}
	return nil
}
