package escrow

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// FulfillCommitment locks the outstanding face value of a payment-commitment
// escrow. The escrow stays FUNDED; ConfirmDelivery still performs the release.
func (e *Engine) FulfillCommitment(id [32]byte, buyer [20]byte, value *big.Int) error {
	return e.mutate("fulfillCommitment", id, func(tx *transition) error {
		esc := tx.esc
		if buyer != esc.Buyer {
			return fmt.Errorf("%w: only the buyer fulfils the commitment", ErrWrongParty)
		}
		if esc.Mode != ModePaymentCommitment {
			return fmt.Errorf("%w: %s escrow has no commitment", ErrWrongMode, esc.Mode)
		}
		if esc.State != StateFunded {
			return fmt.Errorf("%w: cannot fulfil in %s", ErrWrongState, esc.State)
		}
		if esc.CommitmentFulfilled {
			return ErrAlreadyFulfilled
		}
		if tx.now > esc.MaturityDate {
			return fmt.Errorf("%w: matured at %d", ErrMatured, esc.MaturityDate)
		}
		want := esc.FaceValue()
		if value == nil || value.Cmp(want) != 0 {
			return fmt.Errorf("%w: expected %s", ErrAmountMismatch, want)
		}
		if err := tx.lockFunds(buyer, want); err != nil {
			return err
		}
		esc.CommitmentFulfilled = true
		tx.emit(newEscrowEvent(EventTypeCommitmentFulfilled, esc))
		return nil
	})
}

// ClaimDefaultedCommitment forfeits the collateral of a matured, unfulfilled
// commitment and closes the escrow as RELEASED. A transferred receivable is
// paid up to its face value and the seller keeps any remainder. No fee is
// charged on a forfeit.
func (e *Engine) ClaimDefaultedCommitment(id [32]byte, seller [20]byte) error {
	return e.mutate("claimDefaultedCommitment", id, func(tx *transition) error {
		esc := tx.esc
		if seller != esc.Seller {
			return fmt.Errorf("%w: only the seller claims a default", ErrWrongParty)
		}
		if esc.Mode != ModePaymentCommitment {
			return fmt.Errorf("%w: %s escrow has no commitment", ErrWrongMode, esc.Mode)
		}
		if esc.State != StateFunded {
			return fmt.Errorf("%w: cannot claim default in %s", ErrWrongState, esc.State)
		}
		if esc.CommitmentFulfilled {
			return ErrAlreadyFulfilled
		}
		if tx.now <= esc.MaturityDate {
			return fmt.Errorf("%w: matures at %d", ErrNotMatured, esc.MaturityDate)
		}
		holder, _ := tx.receivableClaim(esc.Custody)
		if err := tx.settleRelease(false); err != nil {
			return err
		}
		evt := newEscrowEvent(EventTypeDefaulted, esc)
		evt.Attributes["holder"] = hex.EncodeToString(holder[:])
		tx.emit(evt)
		tx.emit(newEscrowEvent(EventTypeReleased, esc))
		return nil
	})
}
