package kyc

import (
	"errors"
	"testing"

	"tradeescrow/core/events"
	escrowstate "tradeescrow/core/state"
	storagedb "tradeescrow/storage"
)

func TestRegistryApproveAndRevoke(t *testing.T) {
	db := storagedb.NewMemDB()
	defer db.Close()
	registry := NewRegistry(escrowstate.NewManager(db))
	registry.SetNowFunc(func() int64 { return 1_700_000_000 })
	rec := &events.Recorder{}
	registry.SetEmitter(rec)
	who := [20]byte{0x11}

	if registry.IsApproved(who) {
		t.Fatalf("unknown identity must not be approved")
	}
	if err := registry.Approve(who, " case-42 "); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !registry.IsApproved(who) {
		t.Fatalf("expected approval")
	}
	approval, ok, err := registry.Approval(who)
	if err != nil || !ok {
		t.Fatalf("approval lookup: ok=%v err=%v", ok, err)
	}
	if approval.Reference != "case-42" || approval.UpdatedAt != 1_700_000_000 {
		t.Fatalf("unexpected approval %+v", approval)
	}
	if err := registry.Revoke(who, "expired"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if registry.IsApproved(who) {
		t.Fatalf("revoked identity must not be approved")
	}
	types := rec.Types()
	if len(types) != 2 || types[0] != EventTypeApproved || types[1] != EventTypeRevoked {
		t.Fatalf("unexpected events %v", types)
	}
	if err := registry.Approve([20]byte{}, ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}
