package reputation

import (
	"math/big"
	"testing"

	escrowstate "tradeescrow/core/state"
	"tradeescrow/native/escrow"
	"tradeescrow/native/fees"
	storagedb "tradeescrow/storage"
)

func TestLedgerReadsCountersWrittenWithEscrows(t *testing.T) {
	db := storagedb.NewMemDB()
	t.Cleanup(db.Close)
	manager := escrowstate.NewManager(db)
	ledger := NewLedger(manager)
	who := [20]byte{0x42}

	stats, err := ledger.GetStats(who)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats != (fees.UserStats{}) {
		t.Fatalf("unknown identity must have empty history, got %+v", stats)
	}
	update := &escrow.Update{
		Escrow: &escrow.Escrow{
			ID:     [32]byte{0x01},
			Buyer:  who,
			Seller: [20]byte{0x43},
			Amount: big.NewInt(1),
			State:  escrow.StateReleased,
		},
		Stats: []escrow.StatIncrement{
			{Identity: who, Field: fees.StatSuccessfulTrades},
			{Identity: who, Field: fees.StatSuccessfulTrades},
			{Identity: who, Field: fees.StatDisputesLost},
		},
	}
	if err := manager.EscrowApply(update); err != nil {
		t.Fatalf("apply: %v", err)
	}
	stats, err = ledger.GetStats(who)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.SuccessfulTrades != 2 || stats.DisputesLost != 1 || stats.DisputesRaised != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestNilLedgerReportsError(t *testing.T) {
	var ledger *Ledger
	if _, err := ledger.GetStats([20]byte{}); err == nil {
		t.Fatalf("expected error from nil ledger")
	}
}
