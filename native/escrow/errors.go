package escrow

import (
	"errors"

	nativecommon "tradeescrow/native/common"
)

// Rejection kinds. Every failed operation wraps exactly one of these so callers
// can branch with errors.Is; none of them leaves the escrow record mutated.
var (
	ErrInvalidParty          = errors.New("escrow: invalid party")
	ErrInvalidAmount         = errors.New("escrow: invalid amount")
	ErrInvalidCollateral     = errors.New("escrow: invalid collateral")
	ErrInvalidMaturity       = errors.New("escrow: invalid maturity")
	ErrInvalidTradeID        = errors.New("escrow: invalid trade id")
	ErrWrongParty            = errors.New("escrow: wrong party")
	ErrWrongState            = errors.New("escrow: wrong state")
	ErrWrongMode             = errors.New("escrow: wrong mode")
	ErrAmountMismatch        = errors.New("escrow: amount mismatch")
	ErrDocumentsNotCommitted = errors.New("escrow: documents not committed")
	ErrAlreadyCommitted      = errors.New("escrow: documents already committed")
	ErrMissingDocument       = errors.New("escrow: mandatory document missing")
	ErrDeadlineNotReached    = errors.New("escrow: deadline not reached")
	ErrDeadlinePassed        = errors.New("escrow: deadline passed")
	ErrMatured               = errors.New("escrow: commitment matured")
	ErrNotMatured            = errors.New("escrow: commitment not matured")
	ErrAlreadyFulfilled      = errors.New("escrow: commitment already fulfilled")
	ErrCommitmentOutstanding = errors.New("escrow: commitment outstanding")
	ErrAlreadyTerminal       = errors.New("escrow: already terminal")
	ErrNotApproved           = errors.New("escrow: identity not approved")
	ErrTransferFailed        = errors.New("escrow: asset transfer failed")
	ErrInvalidRuling         = errors.New("escrow: invalid ruling")
	ErrNotFound              = errors.New("escrow: not found")
	ErrTradeExists           = errors.New("escrow: trade already exists")
	ErrReceivableNotFound    = errors.New("escrow: receivable not found")
	ErrReceivableSettled     = errors.New("escrow: receivable settled")
	ErrStatsUnavailable      = errors.New("escrow: user stats unavailable")
)

var (
	errNilState    = errors.New("escrow engine: state not configured")
	errNilAssets   = errors.New("escrow engine: asset transfer not configured")
	errNilStats    = errors.New("escrow engine: stats ledger not configured")
	errNilAccess   = errors.New("escrow engine: access list not configured")
	errNilTreasury = errors.New("escrow engine: fee treasury not configured")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidParty, "InvalidParty"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidCollateral, "InvalidCollateral"},
	{ErrInvalidMaturity, "InvalidMaturity"},
	{ErrInvalidTradeID, "InvalidTradeId"},
	{ErrWrongParty, "WrongParty"},
	{ErrWrongState, "WrongState"},
	{ErrWrongMode, "WrongMode"},
	{ErrAmountMismatch, "AmountMismatch"},
	{ErrDocumentsNotCommitted, "DocumentsNotCommitted"},
	{ErrAlreadyCommitted, "AlreadyCommitted"},
	{ErrMissingDocument, "MissingDocument"},
	{ErrDeadlineNotReached, "DeadlineNotReached"},
	{ErrDeadlinePassed, "DeadlinePassed"},
	{ErrMatured, "Matured"},
	{ErrNotMatured, "NotMatured"},
	{ErrAlreadyFulfilled, "AlreadyFulfilled"},
	{ErrCommitmentOutstanding, "CommitmentOutstanding"},
	{ErrAlreadyTerminal, "AlreadyTerminal"},
	{ErrNotApproved, "NotApproved"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrInvalidRuling, "InvalidRuling"},
	{ErrNotFound, "NotFound"},
	{ErrTradeExists, "TradeExists"},
	{ErrReceivableNotFound, "ReceivableNotFound"},
	{ErrReceivableSettled, "ReceivableSettled"},
	{ErrStatsUnavailable, "StatsUnavailable"},
	{nativecommon.ErrModulePaused, "ModulePaused"},
}

// Kind returns the stable name of the rejection kind wrapped by err, "ok" for
// a nil error and "Internal" for errors outside the catalogue.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// IsTransient reports whether the failure originated in a collaborator and may
// succeed if the caller retries. Both kinds are raised before any record or
// counter is written. The engine itself never retries.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransferFailed) || errors.Is(err, ErrStatsUnavailable)
}
