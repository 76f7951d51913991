package escrow

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Receivable is the transferable claim on the unfulfilled balance of a
// payment-commitment escrow. Its owner receives any payout of the escrow.
type Receivable struct {
	ID               [32]byte
	EscrowID         [32]byte
	Owner            [20]byte
	Asset            [20]byte
	FaceValue        *big.Int
	CollateralAmount *big.Int
	MaturityDate     int64
	IssuedAt         int64
	Settled          bool
}

// Clone returns a deep copy of the receivable.
func (r *Receivable) Clone() *Receivable {
	if r == nil {
		return nil
	}
	clone := *r
	clone.FaceValue = cloneBigInt(r.FaceValue)
	clone.CollateralAmount = cloneBigInt(r.CollateralAmount)
	return &clone
}

// ReceivableID derives the token identifier minted for an escrow.
func ReceivableID(escrowID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("receivable"), escrowID[:])
}

func mintReceivable(esc *Escrow, now int64) *Receivable {
	return &Receivable{
		ID:               ReceivableID(esc.ID),
		EscrowID:         esc.ID,
		Owner:            esc.Seller,
		Asset:            esc.Asset,
		FaceValue:        esc.FaceValue(),
		CollateralAmount: cloneBigInt(esc.CollateralAmount),
		MaturityDate:     esc.MaturityDate,
		IssuedAt:         now,
	}
}

// TransferReceivable moves an unsettled receivable from its owner to a new
// holder. Transfers are serialised with the underlying escrow.
func (e *Engine) TransferReceivable(receivableID [32]byte, owner, to [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	probe, ok, err := e.state.ReceivableGet(receivableID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReceivableNotFound
	}
	return e.mutate("transferReceivable", probe.EscrowID, func(tx *transition) error {
		rec := tx.receivable
		if rec == nil || rec.ID != receivableID {
			return ErrReceivableNotFound
		}
		if rec.Owner != owner {
			return ErrWrongParty
		}
		if rec.Settled {
			return ErrReceivableSettled
		}
		if to == ([20]byte{}) || to == owner {
			return ErrInvalidParty
		}
		rec.Owner = to
		tx.writeReceivable = true
		tx.emit(newReceivableEvent(EventTypeReceivableTransferred, rec, owner))
		return nil
	})
}
