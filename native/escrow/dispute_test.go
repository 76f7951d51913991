package escrow

import (
	"errors"
	"testing"
)

func TestRaiseDisputeSetsDeadlineAndCountsRaiser(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-1", 1_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, outsider); !errors.Is(err, ErrWrongParty) {
		t.Fatalf("expected ErrWrongParty, got %v", err)
	}
	if err := h.engine.RaiseDispute(esc.ID, buyer); err != nil {
		t.Fatalf("raise: %v", err)
	}
	got := h.load(t, esc.ID)
	if got.State != StateDisputed {
		t.Fatalf("expected DISPUTED, got %s", got.State)
	}
	if got.DisputeDeadline != startTime+DefaultDisputeWindow {
		t.Fatalf("deadline = %d, want %d", got.DisputeDeadline, startTime+DefaultDisputeWindow)
	}
	if got.DisputedBy != buyer {
		t.Fatalf("disputedBy not recorded")
	}
	if s := h.stats.get(buyer); s.DisputesRaised != 1 {
		t.Fatalf("buyer disputesRaised = %d", s.DisputesRaised)
	}
}

func TestRaiseDisputeByArbiterIsNotCounted(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-2", 1_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, arbiter); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if s := h.stats.get(arbiter); s.DisputesRaised != 0 {
		t.Fatalf("arbiter raises must not be counted")
	}
}

func TestRaiseDisputeRequiresFundedEscrow(t *testing.T) {
	h := newHarness(t)
	esc := h.initiate(t, "DSP-3", 1_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, buyer); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState from DRAFT, got %v", err)
	}
}

func TestReraiseRefreshesDeadlineWithoutRecounting(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-4", 1_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, buyer); err != nil {
		t.Fatalf("raise: %v", err)
	}
	h.advance(24 * 60 * 60)
	if err := h.engine.RaiseDispute(esc.ID, seller); err != nil {
		t.Fatalf("re-raise must refresh, got %v", err)
	}
	got := h.load(t, esc.ID)
	if got.DisputeDeadline != h.now+DefaultDisputeWindow {
		t.Fatalf("deadline = %d, want %d", got.DisputeDeadline, h.now+DefaultDisputeWindow)
	}
	if got.DisputedBy != buyer {
		t.Fatalf("original raiser must be kept")
	}
	if s := h.stats.get(seller); s.DisputesRaised != 0 {
		t.Fatalf("refresh must not count, seller disputesRaised = %d", s.DisputesRaised)
	}
	if s := h.stats.get(buyer); s.DisputesRaised != 1 {
		t.Fatalf("buyer disputesRaised = %d", s.DisputesRaised)
	}
}

func TestEscalationRequiresLapsedDeadline(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-5", 1_000, CashLock{})
	if err := h.engine.EscalateToProtocol(esc.ID, buyer); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState before dispute, got %v", err)
	}
	if err := h.engine.RaiseDispute(esc.ID, buyer); err != nil {
		t.Fatalf("raise: %v", err)
	}
	h.advance(DefaultDisputeWindow - 1)
	if err := h.engine.EscalateToProtocol(esc.ID, seller); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("expected ErrDeadlineNotReached, got %v", err)
	}
	h.advance(1)
	if err := h.engine.EscalateToProtocol(esc.ID, seller); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("escalation at the deadline instant must fail, got %v", err)
	}
	h.advance(1)
	if err := h.engine.EscalateToProtocol(esc.ID, seller); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	got := h.load(t, esc.ID)
	if got.State != StateEscalated {
		t.Fatalf("expected ESCALATED, got %s", got.State)
	}
	if got.ActiveArbiter != protocol {
		t.Fatalf("authority not transferred to protocol arbiter")
	}
	if got.DisputeDeadline != h.now+DefaultEscalationWindow {
		t.Fatalf("escalation deadline = %d, want %d", got.DisputeDeadline, h.now+DefaultEscalationWindow)
	}
	if err := h.engine.ResolveDispute(esc.ID, arbiter, RulingRefundBuyer); !errors.Is(err, ErrWrongState) {
		t.Fatalf("original arbiter must lose authority, got %v", err)
	}
}

func TestResolveDisputeRefundCountsSellerLoss(t *testing.T) {
	h := newHarness(t)
	esc := h.committed(t, "DSP-6", 1_000, PaymentCommitment{CollateralBps: 2_000, MaturityDays: 30})
	if err := h.engine.FulfillCommitment(esc.ID, buyer, esc.FaceValue()); err != nil {
		t.Fatalf("fulfil: %v", err)
	}
	if err := h.engine.RaiseDispute(esc.ID, buyer); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := h.engine.ResolveDispute(esc.ID, buyer, RulingRefundBuyer); !errors.Is(err, ErrWrongParty) {
		t.Fatalf("expected ErrWrongParty, got %v", err)
	}
	if err := h.engine.ResolveDispute(esc.ID, arbiter, RulingNone); !errors.Is(err, ErrInvalidRuling) {
		t.Fatalf("expected ErrInvalidRuling, got %v", err)
	}
	if err := h.engine.ResolveDispute(esc.ID, arbiter, RulingRefundBuyer); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got := h.load(t, esc.ID)
	if got.State != StateRefunded || got.Resolution != RulingRefundBuyer {
		t.Fatalf("expected REFUNDED, got %s/%s", got.State, got.Resolution)
	}
	if bal := h.assets.balance(buyer); bal != 1_000_000 {
		t.Fatalf("buyer must recover the full custody, balance=%d", bal)
	}
	if s := h.stats.get(seller); s.DisputesLost != 1 {
		t.Fatalf("seller disputesLost = %d", s.DisputesLost)
	}
	rec, ok, err := h.engine.Receivable(esc.ID)
	if err != nil || !ok || !rec.Settled {
		t.Fatalf("receivable must be settled on refund: ok=%v err=%v", ok, err)
	}
}

func TestResolveDisputeRefundIgnoresUnfulfilledCommitment(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-7", 1_000, PaymentCommitment{CollateralBps: 2_000, MaturityDays: 30})
	if err := h.engine.RaiseDispute(esc.ID, seller); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := h.engine.ResolveDispute(esc.ID, arbiter, RulingRefundBuyer); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := h.load(t, esc.ID); got.State != StateRefunded {
		t.Fatalf("expected REFUNDED, got %s", got.State)
	}
	if s := h.stats.get(seller); s.DisputesLost != 1 {
		t.Fatalf("seller disputesLost = %d", s.DisputesLost)
	}
}

func TestResolveDisputeReleaseChargesFeeAndCountsBuyerLoss(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-8", 2_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, buyer); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := h.engine.ResolveDispute(esc.ID, arbiter, RulingReleaseToSeller); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if bal := h.assets.balance(seller); bal != 1_980 {
		t.Fatalf("seller balance = %d, want 1980", bal)
	}
	if bal := h.assets.balance(treasury); bal != 20 {
		t.Fatalf("treasury balance = %d, want 20", bal)
	}
	if s := h.stats.get(buyer); s.DisputesLost != 1 {
		t.Fatalf("buyer disputesLost = %d", s.DisputesLost)
	}
	if s := h.stats.get(seller); s.SuccessfulTrades != 0 {
		t.Fatalf("adjudicated releases are not successful trades")
	}
}

func TestResolveEscalationWithinWindow(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-9", 1_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, seller); err != nil {
		t.Fatalf("raise: %v", err)
	}
	h.advance(DefaultDisputeWindow + 1)
	if err := h.engine.EscalateToProtocol(esc.ID, buyer); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if err := h.engine.ResolveEscalation(esc.ID, arbiter, RulingReleaseToSeller); !errors.Is(err, ErrWrongParty) {
		t.Fatalf("expected ErrWrongParty for original arbiter, got %v", err)
	}
	if err := h.engine.ResolveEscalation(esc.ID, protocol, RulingReleaseToSeller); err != nil {
		t.Fatalf("resolve escalation: %v", err)
	}
	got := h.load(t, esc.ID)
	if got.State != StateReleased {
		t.Fatalf("expected RELEASED, got %s", got.State)
	}
	if s := h.stats.get(buyer); s.DisputesLost != 1 {
		t.Fatalf("buyer disputesLost = %d", s.DisputesLost)
	}
}

func TestResolveEscalationAfterWindowFails(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-10", 1_000, CashLock{})
	if err := h.engine.RaiseDispute(esc.ID, seller); err != nil {
		t.Fatalf("raise: %v", err)
	}
	h.advance(DefaultDisputeWindow + 1)
	if err := h.engine.EscalateToProtocol(esc.ID, buyer); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	h.advance(DefaultEscalationWindow + 1)
	if err := h.engine.ResolveEscalation(esc.ID, protocol, RulingRefundBuyer); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestClaimTimeoutIsIdempotentSafe(t *testing.T) {
	h := newHarness(t)
	esc := h.funded(t, "DSP-11", 1_000, CashLock{})
	if err := h.engine.ClaimTimeout(esc.ID, buyer); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState from FUNDED, got %v", err)
	}
	if err := h.engine.RaiseDispute(esc.ID, seller); err != nil {
		t.Fatalf("raise: %v", err)
	}
	h.advance(DefaultDisputeWindow + 1)
	if err := h.engine.EscalateToProtocol(esc.ID, seller); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if err := h.engine.ClaimTimeout(esc.ID, buyer); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("expected ErrDeadlineNotReached, got %v", err)
	}
	h.advance(DefaultEscalationWindow + 1)
	if err := h.engine.ClaimTimeout(esc.ID, outsider); !errors.Is(err, ErrWrongParty) {
		t.Fatalf("expected ErrWrongParty, got %v", err)
	}
	if err := h.engine.ClaimTimeout(esc.ID, buyer); err != nil {
		t.Fatalf("claim timeout: %v", err)
	}
	if err := h.engine.ClaimTimeout(esc.ID, buyer); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	got := h.load(t, esc.ID)
	if got.State != StateRefunded || got.Resolution != TimeoutRuling {
		t.Fatalf("expected default refund, got %s/%s", got.State, got.Resolution)
	}
	if bal := h.assets.balance(buyer); bal != 1_000_000 {
		t.Fatalf("buyer balance = %d", bal)
	}
	if s := h.stats.get(seller); s.DisputesLost != 0 {
		t.Fatalf("timeouts have no adjudicated loser")
	}
}
