package reputation

import (
	"errors"

	"tradeescrow/native/fees"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	UserStatsGet(identity [20]byte) (fees.UserStats, error)
}

// Ledger serves the per-identity trade history consumed by the tier engine.
// Counters are written by the state manager in the same batch as the escrow
// transition that earned them, so they only ever increase and never run ahead
// of a committed record.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) ready() error {
	if l == nil {
		return errors.New("reputation: ledger not initialised")
	}
	if l.store == nil {
		return errors.New("reputation: storage unavailable")
	}
	return nil
}

// GetStats returns the counters of identity; unknown identities have zero
// history.
func (l *Ledger) GetStats(identity [20]byte) (fees.UserStats, error) {
	if err := l.ready(); err != nil {
		return fees.UserStats{}, err
	}
	return l.store.UserStatsGet(identity)
}
