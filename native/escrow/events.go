package escrow

import (
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"tradeescrow/core/types"
)

const (
	EventTypeInitiated             = "escrow.initiated"
	EventTypeFunded                = "escrow.funded"
	EventTypeDocumentsCommitted    = "escrow.documents_committed"
	EventTypeReceivableMinted      = "escrow.receivable_minted"
	EventTypeCommitmentFulfilled   = "escrow.commitment_fulfilled"
	EventTypeReleased              = "escrow.released"
	EventTypeRefunded              = "escrow.refunded"
	EventTypeDisputed              = "escrow.disputed"
	EventTypeEscalated             = "escrow.escalated"
	EventTypeResolved              = "escrow.resolved"
	EventTypeDefaulted             = "escrow.defaulted"
	EventTypeReceivableTransferred = "escrow.receivable_transferred"
	EventTypeTimedOut              = "escrow.timed_out"
)

// EventTypes lists every event the engine emits.
var EventTypes = []string{
	EventTypeInitiated,
	EventTypeFunded,
	EventTypeDocumentsCommitted,
	EventTypeReceivableMinted,
	EventTypeCommitmentFulfilled,
	EventTypeReleased,
	EventTypeRefunded,
	EventTypeDisputed,
	EventTypeEscalated,
	EventTypeResolved,
	EventTypeDefaulted,
	EventTypeReceivableTransferred,
	EventTypeTimedOut,
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := map[string]string{"eventId": uuid.NewString()}
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(e.ID[:])
	attrs["tradeId"] = e.TradeID
	attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
	attrs["seller"] = hex.EncodeToString(e.Seller[:])
	attrs["arbiter"] = hex.EncodeToString(e.ActiveArbiter[:])
	attrs["asset"] = hex.EncodeToString(e.Asset[:])
	attrs["amount"] = cloneBigInt(e.Amount).String()
	attrs["state"] = e.State.String()
	attrs["mode"] = e.Mode.String()
	attrs["feeBps"] = strconv.FormatUint(uint64(e.FeeRateBps), 10)
	attrs["custody"] = cloneBigInt(e.Custody).String()
	if e.Mode == ModePaymentCommitment {
		attrs["collateral"] = cloneBigInt(e.CollateralAmount).String()
		attrs["maturityDate"] = strconv.FormatInt(e.MaturityDate, 10)
	}
	if e.DisputeDeadline != 0 {
		attrs["disputeDeadline"] = strconv.FormatInt(e.DisputeDeadline, 10)
	}
	if e.Resolution != RulingNone {
		attrs["ruling"] = e.Resolution.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newDocumentsEvent(e *Escrow, docs *DocumentSet) *types.Event {
	evt := newEscrowEvent(EventTypeDocumentsCommitted, e)
	if docs != nil {
		evt.Attributes["merkleRoot"] = hex.EncodeToString(docs.MerkleRoot[:])
		evt.Attributes["committedAt"] = strconv.FormatInt(docs.CommittedAt, 10)
	}
	return evt
}

func newDisputeEvent(eventType string, e *Escrow, actor [20]byte) *types.Event {
	evt := newEscrowEvent(eventType, e)
	evt.Attributes["actor"] = hex.EncodeToString(actor[:])
	return evt
}

func newReceivableEvent(eventType string, r *Receivable, previousOwner [20]byte) *types.Event {
	attrs := map[string]string{"eventId": uuid.NewString()}
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["receivableId"] = hex.EncodeToString(r.ID[:])
	attrs["id"] = hex.EncodeToString(r.EscrowID[:])
	attrs["owner"] = hex.EncodeToString(r.Owner[:])
	attrs["faceValue"] = cloneBigInt(r.FaceValue).String()
	attrs["collateral"] = cloneBigInt(r.CollateralAmount).String()
	attrs["maturityDate"] = strconv.FormatInt(r.MaturityDate, 10)
	attrs["settled"] = strconv.FormatBool(r.Settled)
	if previousOwner != ([20]byte{}) {
		attrs["from"] = hex.EncodeToString(previousOwner[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
