package escrow

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"tradeescrow/core/events"
	"tradeescrow/core/types"
	nativecommon "tradeescrow/native/common"
	"tradeescrow/native/fees"
)

const moduleName = "escrow"

// AssetTransfer moves funds in and out of escrow custody. A failure aborts the
// transition that requested the transfer.
type AssetTransfer interface {
	Lock(from [20]byte, asset [20]byte, amount *big.Int) error
	Release(to [20]byte, asset [20]byte, amount *big.Int) error
	Refund(to [20]byte, asset [20]byte, amount *big.Int) error
}

// StatsLedger reads per-identity trade history. Increments are not written
// through the ledger: they travel in Update.Stats and the state backend
// applies them together with the escrow records.
type StatsLedger interface {
	GetStats(identity [20]byte) (fees.UserStats, error)
}

// StatIncrement bumps one counter of one identity by one.
type StatIncrement struct {
	Identity [20]byte
	Field    fees.StatField
}

// AccessList reports whether an identity passed KYC.
type AccessList interface {
	IsApproved(identity [20]byte) bool
}

// Observer is notified after every operation with the rejection kind, or "ok".
type Observer interface {
	ObserveTransition(operation, kind string)
}

// Update is the set of records written atomically by one transition. The
// state backend must apply Stats in the same write as the records, or none of
// it.
type Update struct {
	Escrow     *Escrow
	Documents  *DocumentSet
	Receivable *Receivable
	Stats      []StatIncrement
}

type engineState interface {
	EscrowGet(id [32]byte) (*Escrow, bool, error)
	EscrowDocumentsGet(id [32]byte) (*DocumentSet, bool, error)
	ReceivableGet(id [32]byte) (*Receivable, bool, error)
	EscrowApply(update *Update) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine is the escrow state machine. Every mutating call takes the verified
// caller identity and re-derives what that caller may do.
type Engine struct {
	params   Params
	state    engineState
	assets   AssetTransfer
	stats    StatsLedger
	access   AccessList
	emitter  events.Emitter
	observer Observer
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	nowFn    func() int64

	locks sync.Map // [32]byte -> *sync.Mutex
}

// NewEngine creates an escrow engine for the supplied deployment context with
// a no-op emitter. Collaborators are wired through the setters.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params.clone(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the asset transfer collaborator.
func (e *Engine) SetAssets(assets AssetTransfer) { e.assets = assets }

// SetStats configures the user stats ledger.
func (e *Engine) SetStats(stats StatsLedger) { e.stats = stats }

// SetAccessList configures the KYC allow-list.
func (e *Engine) SetAccessList(access AccessList) { e.access = access }

// SetPauses configures the pause switch consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetObserver configures the transition observer (metrics).
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// SetLogger overrides the logger used for compensation failures.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	e.logger = l
}

// SetNowFunc overrides the time source used by the engine. It is the single
// clock every deadline is evaluated against.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns a copy of the deployment context.
func (e *Engine) Params() Params { return e.params.clone() }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) observe(op string, err error) {
	if e.observer != nil {
		e.observer.ObserveTransition(op, Kind(err))
	}
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.assets == nil:
		return errNilAssets
	case e.stats == nil:
		return errNilStats
	case e.access == nil:
		return errNilAccess
	}
	return nil
}

func (e *Engine) lock(id [32]byte) func() {
	mu, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (e *Engine) approved(identity [20]byte) bool {
	return e.access != nil && e.access.IsApproved(identity)
}

// Quote returns the tier and fee rate the identity would be charged if it
// drafted an escrow now.
func (e *Engine) Quote(identity [20]byte) (fees.Quote, error) {
	if e == nil || e.stats == nil {
		return fees.Quote{}, errNilStats
	}
	stats, err := e.stats.GetStats(identity)
	if err != nil {
		return fees.Quote{}, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
	}
	return e.params.Tiers.Quote(stats), nil
}

// Initiate drafts a new escrow. The caller must be the buyer.
func (e *Engine) Initiate(caller [20]byte, p InitiateParams) (esc *Escrow, err error) {
	defer func() { e.observe("initiate", err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller != p.Buyer {
		return nil, fmt.Errorf("%w: initiator must be the buyer", ErrWrongParty)
	}
	if err := e.validateParties(p.Buyer, p.Seller, p.Arbiter); err != nil {
		return nil, err
	}
	tradeID := strings.TrimSpace(p.TradeID)
	if tradeID == "" {
		return nil, ErrInvalidTradeID
	}
	amount := cloneBigInt(p.Amount)
	if amount.Sign() <= 0 || amount.Cmp(e.params.MinAmount) < 0 || amount.Cmp(e.params.MaxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s outside [%s,%s]", ErrInvalidAmount, amount, e.params.MinAmount, e.params.MaxAmount)
	}
	if p.Terms == nil {
		return nil, fmt.Errorf("%w: terms required", ErrWrongMode)
	}
	now := e.now()
	draft := &Escrow{
		ID:               EscrowID(p.Buyer, tradeID),
		Buyer:            p.Buyer,
		Seller:           p.Seller,
		Arbiter:          p.Arbiter,
		ActiveArbiter:    p.Arbiter,
		Asset:            p.Asset,
		Amount:           amount,
		TradeID:          tradeID,
		TradeDataHash:    p.TradeDataHash,
		State:            StateDraft,
		Mode:             p.Terms.Mode(),
		CollateralAmount: big.NewInt(0),
		Custody:          big.NewInt(0),
		CreatedAt:        now,
	}
	switch terms := p.Terms.(type) {
	case CashLock:
	case PaymentCommitment:
		if terms.CollateralBps < e.params.MinCollateralBps || terms.CollateralBps > e.params.MaxCollateralBps {
			return nil, fmt.Errorf("%w: %d bps outside [%d,%d]", ErrInvalidCollateral, terms.CollateralBps, e.params.MinCollateralBps, e.params.MaxCollateralBps)
		}
		if terms.MaturityDays < e.params.MinMaturityDays || terms.MaturityDays > e.params.MaxMaturityDays {
			return nil, fmt.Errorf("%w: %d days outside [%d,%d]", ErrInvalidMaturity, terms.MaturityDays, e.params.MinMaturityDays, e.params.MaxMaturityDays)
		}
		draft.CollateralBps = terms.CollateralBps
		draft.CollateralAmount = fees.BpsOf(amount, terms.CollateralBps)
		if draft.CollateralAmount.Sign() == 0 {
			return nil, fmt.Errorf("%w: collateral truncates to zero", ErrInvalidCollateral)
		}
		draft.MaturityDate = now + int64(terms.MaturityDays)*secondsPerDay
	default:
		return nil, fmt.Errorf("%w: unsupported terms %T", ErrWrongMode, p.Terms)
	}
	if !e.approved(p.Buyer) {
		return nil, fmt.Errorf("%w: buyer", ErrNotApproved)
	}
	if !e.approved(p.Seller) {
		return nil, fmt.Errorf("%w: seller", ErrNotApproved)
	}

	unlock := e.lock(draft.ID)
	defer unlock()
	if _, exists, err := e.state.EscrowGet(draft.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrTradeExists, tradeID)
	}
	// The fee snapshot is taken under the escrow lock together with creation.
	quote, err := e.Quote(p.Buyer)
	if err != nil {
		return nil, err
	}
	draft.FeeTier = quote.Tier
	draft.FeeRateBps = quote.FeeBps
	if err := e.state.EscrowApply(&Update{Escrow: draft}); err != nil {
		return nil, err
	}
	e.emit(newEscrowEvent(EventTypeInitiated, draft))
	return draft.Clone(), nil
}

func (e *Engine) validateParties(buyer, seller, arbiter [20]byte) error {
	zero := [20]byte{}
	if buyer == zero || seller == zero || arbiter == zero {
		return fmt.Errorf("%w: buyer, seller and arbiter are required", ErrInvalidParty)
	}
	if buyer == seller || buyer == arbiter || seller == arbiter {
		return fmt.Errorf("%w: buyer, seller and arbiter must be distinct", ErrInvalidParty)
	}
	protocol := e.params.ProtocolArbiter
	if buyer == protocol || seller == protocol || arbiter == protocol {
		return fmt.Errorf("%w: protocol arbiter cannot be a party", ErrInvalidParty)
	}
	return nil
}

// Fund locks the buyer's funding amount and moves the escrow to FUNDED.
func (e *Engine) Fund(id [32]byte, payer [20]byte, value *big.Int) error {
	return e.mutate("fund", id, func(tx *transition) error {
		esc := tx.esc
		if payer != esc.Buyer {
			return fmt.Errorf("%w: only the buyer funds", ErrWrongParty)
		}
		if esc.State != StateDraft {
			return fmt.Errorf("%w: cannot fund in %s", ErrWrongState, esc.State)
		}
		want := esc.FundingAmount()
		if value == nil || value.Cmp(want) != 0 {
			return fmt.Errorf("%w: expected %s", ErrAmountMismatch, want)
		}
		if !e.approved(payer) {
			return ErrNotApproved
		}
		if err := tx.lockFunds(payer, want); err != nil {
			return err
		}
		esc.State = StateFunded
		esc.FundedAt = tx.now
		tx.emit(newEscrowEvent(EventTypeFunded, esc))
		return nil
	})
}

// CommitDocuments stores the seller's document hashes and, for payment
// commitments, mints the receivable.
func (e *Engine) CommitDocuments(id [32]byte, seller [20]byte, hashes DocumentHashes) error {
	return e.mutate("commitDocuments", id, func(tx *transition) error {
		esc := tx.esc
		if seller != esc.Seller {
			return fmt.Errorf("%w: only the seller commits documents", ErrWrongParty)
		}
		if esc.State != StateFunded {
			return fmt.Errorf("%w: cannot commit documents in %s", ErrWrongState, esc.State)
		}
		if tx.docs.Committed() {
			return ErrAlreadyCommitted
		}
		if hashes.Invoice == ([32]byte{}) {
			return fmt.Errorf("%w: invoice", ErrMissingDocument)
		}
		tx.docs = &DocumentSet{
			EscrowID:    esc.ID,
			Hashes:      hashes,
			MerkleRoot:  MerkleRoot(hashes),
			CommittedAt: tx.now,
		}
		tx.writeDocs = true
		tx.emit(newDocumentsEvent(esc, tx.docs))
		if esc.Mode == ModePaymentCommitment {
			tx.receivable = mintReceivable(esc, tx.now)
			tx.writeReceivable = true
			tx.emit(newReceivableEvent(EventTypeReceivableMinted, tx.receivable, [20]byte{}))
		}
		return nil
	})
}

// ConfirmDelivery releases the escrow to the seller once the buyer
// acknowledges delivery. The face value of a transferred receivable goes to its
// holder.
func (e *Engine) ConfirmDelivery(id [32]byte, buyer [20]byte) error {
	return e.mutate("confirmDelivery", id, func(tx *transition) error {
		esc := tx.esc
		if buyer != esc.Buyer {
			return fmt.Errorf("%w: only the buyer confirms delivery", ErrWrongParty)
		}
		if esc.State != StateFunded {
			return fmt.Errorf("%w: cannot confirm delivery in %s", ErrWrongState, esc.State)
		}
		if !tx.docs.Committed() {
			return ErrDocumentsNotCommitted
		}
		if esc.Mode == ModePaymentCommitment && !esc.CommitmentFulfilled {
			return ErrCommitmentOutstanding
		}
		if err := tx.settleRelease(true); err != nil {
			return err
		}
		tx.increment(esc.Buyer, fees.StatSuccessfulTrades)
		tx.increment(esc.Seller, fees.StatSuccessfulTrades)
		tx.emit(newEscrowEvent(EventTypeReleased, esc))
		return nil
	})
}

// Escrow returns a copy of the stored escrow.
func (e *Engine) Escrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return esc.Clone(), nil
}

// Documents returns the committed document set, if any.
func (e *Engine) Documents(id [32]byte) (*DocumentSet, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.EscrowDocumentsGet(id)
}

// Receivable returns the receivable minted for an escrow, if any.
func (e *Engine) Receivable(escrowID [32]byte) (*Receivable, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.ReceivableGet(ReceivableID(escrowID))
}

// View is the read-only projection consumed by presentation layers.
type View struct {
	Escrow     *Escrow
	Documents  *DocumentSet
	Receivable *Receivable
	FaceValue  *big.Int
}

// View assembles the escrow, its documents and its receivable.
func (e *Engine) View(id [32]byte) (*View, error) {
	esc, err := e.Escrow(id)
	if err != nil {
		return nil, err
	}
	docs, _, err := e.Documents(id)
	if err != nil {
		return nil, err
	}
	rec, _, err := e.Receivable(id)
	if err != nil {
		return nil, err
	}
	return &View{Escrow: esc, Documents: docs, Receivable: rec, FaceValue: esc.FaceValue()}, nil
}
