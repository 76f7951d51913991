package escrow

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"tradeescrow/core/types"
	nativecommon "tradeescrow/native/common"
	"tradeescrow/native/fees"
)

type transferKind uint8

const (
	transferLock transferKind = iota + 1
	transferRelease
	transferRefund
)

func (k transferKind) String() string {
	switch k {
	case transferLock:
		return "lock"
	case transferRelease:
		return "release"
	case transferRefund:
		return "refund"
	default:
		return "unknown"
	}
}

type transfer struct {
	kind   transferKind
	party  [20]byte
	amount *big.Int
}

// transition is the working copy of one escrow while an operation runs. Effects
// are staged here and only reach the store in commit.
type transition struct {
	engine *Engine
	op     string
	now    int64

	esc        *Escrow
	docs       *DocumentSet
	receivable *Receivable

	writeDocs       bool
	writeReceivable bool

	journal    []transfer
	increments []StatIncrement
	events     []*types.Event
}

// mutate runs fn against a fresh copy of the escrow while holding its lock.
// Either every staged effect applies or none does.
func (e *Engine) mutate(op string, id [32]byte, fn func(tx *transition) error) (err error) {
	defer func() { e.observe(op, err) }()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	unlock := e.lock(id)
	defer unlock()

	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	docs, _, err := e.state.EscrowDocumentsGet(id)
	if err != nil {
		return err
	}
	rec, _, err := e.state.ReceivableGet(ReceivableID(id))
	if err != nil {
		return err
	}
	tx := &transition{
		engine:     e,
		op:         op,
		now:        e.now(),
		esc:        esc.Clone(),
		docs:       docs.Clone(),
		receivable: rec.Clone(),
	}
	if tx.esc.Custody == nil {
		tx.esc.Custody = big.NewInt(0)
	}
	if err := fn(tx); err != nil {
		return tx.abort(err)
	}
	return tx.commit()
}

func (tx *transition) emit(evt *types.Event) {
	if evt != nil {
		tx.events = append(tx.events, evt)
	}
}

func (tx *transition) increment(identity [20]byte, field fees.StatField) {
	tx.increments = append(tx.increments, StatIncrement{Identity: identity, Field: field})
}

func (tx *transition) lockFunds(from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if err := tx.engine.assets.Lock(from, tx.esc.Asset, amount); err != nil {
		return fmt.Errorf("%w: lock: %v", ErrTransferFailed, err)
	}
	tx.journal = append(tx.journal, transfer{kind: transferLock, party: from, amount: cloneBigInt(amount)})
	tx.esc.Custody = new(big.Int).Add(tx.esc.Custody, amount)
	return nil
}

func (tx *transition) payOut(kind transferKind, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if amount.Cmp(tx.esc.Custody) > 0 {
		return fmt.Errorf("%w: %s exceeds custody %s", ErrTransferFailed, amount, tx.esc.Custody)
	}
	var err error
	if kind == transferRefund {
		err = tx.engine.assets.Refund(to, tx.esc.Asset, amount)
	} else {
		err = tx.engine.assets.Release(to, tx.esc.Asset, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, kind, err)
	}
	tx.journal = append(tx.journal, transfer{kind: kind, party: to, amount: cloneBigInt(amount)})
	tx.esc.Custody = new(big.Int).Sub(tx.esc.Custody, amount)
	return nil
}

// receivableClaim returns the holder of an unsettled receivable that has left
// the seller, together with the part of available owed to it. The holder is
// owed at most the face value.
func (tx *transition) receivableClaim(available *big.Int) ([20]byte, *big.Int) {
	rec := tx.receivable
	if rec == nil || rec.Settled || rec.Owner == tx.esc.Seller {
		return tx.esc.Seller, big.NewInt(0)
	}
	claim := cloneBigInt(rec.FaceValue)
	if claim.Cmp(available) > 0 {
		claim = cloneBigInt(available)
	}
	return rec.Owner, claim
}

// settleRelease pays out the whole custody and closes the escrow as RELEASED.
// A transferred receivable is paid its claim first and the seller keeps the
// rest. The snapshotted fee, when charged, comes out of the seller's share
// before the holder's.
func (tx *transition) settleRelease(charge bool) error {
	gross := cloneBigInt(tx.esc.Custody)
	fee := big.NewInt(0)
	if charge {
		fee = fees.Apply(gross, tx.esc.FeeRateBps).Fee
	}
	holder, holderShare := tx.receivableClaim(gross)
	sellerShare := new(big.Int).Sub(gross, holderShare)
	sellerShare.Sub(sellerShare, fee)
	if sellerShare.Sign() < 0 {
		holderShare.Add(holderShare, sellerShare)
		sellerShare.SetInt64(0)
	}
	if err := tx.payOut(transferRelease, holder, holderShare); err != nil {
		return err
	}
	if err := tx.payOut(transferRelease, tx.esc.Seller, sellerShare); err != nil {
		return err
	}
	if err := tx.payOut(transferRelease, tx.engine.params.FeeTreasury, fee); err != nil {
		return err
	}
	tx.close(StateReleased)
	return nil
}

// settleRefund returns the whole custody to the buyer and closes the escrow as
// REFUNDED.
func (tx *transition) settleRefund() error {
	if err := tx.payOut(transferRefund, tx.esc.Buyer, cloneBigInt(tx.esc.Custody)); err != nil {
		return err
	}
	tx.close(StateRefunded)
	return nil
}

func (tx *transition) close(state State) {
	tx.esc.State = state
	tx.esc.SettledAt = tx.now
	tx.esc.DisputeDeadline = 0
	if tx.receivable != nil && !tx.receivable.Settled {
		tx.receivable.Settled = true
		tx.writeReceivable = true
	}
}

// commit writes the records and the staged stat increments in one atomic
// apply, then emits the staged events.
func (tx *transition) commit() error {
	e := tx.engine
	update := &Update{Escrow: tx.esc, Stats: tx.increments}
	if tx.writeDocs {
		update.Documents = tx.docs
	}
	if tx.writeReceivable {
		update.Receivable = tx.receivable
	}
	if err := e.state.EscrowApply(update); err != nil {
		return tx.abort(err)
	}
	for _, evt := range tx.events {
		e.emit(evt)
	}
	return nil
}

// abort undoes completed transfers in reverse order and returns cause joined
// with any compensation failure.
func (tx *transition) abort(cause error) error {
	var errs []error
	for i := len(tx.journal) - 1; i >= 0; i-- {
		t := tx.journal[i]
		var err error
		switch t.kind {
		case transferLock:
			err = tx.engine.assets.Refund(t.party, tx.esc.Asset, t.amount)
		default:
			err = tx.engine.assets.Lock(t.party, tx.esc.Asset, t.amount)
		}
		if err != nil {
			tx.engine.logger.Error("escrow compensation failed",
				"op", tx.op,
				"escrow", hex.EncodeToString(tx.esc.ID[:]),
				"transfer", t.kind.String(),
				"amount", t.amount.String(),
				"error", err)
			errs = append(errs, fmt.Errorf("compensate %s: %w", t.kind, err))
		}
	}
	tx.journal = nil
	if len(errs) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, errs...)...)
}
