package escrow

import (
	"fmt"

	"tradeescrow/native/fees"
)

// TimeoutRuling is applied by ClaimTimeout when the protocol arbiter lets the
// escalation window lapse without a decision.
const TimeoutRuling = RulingRefundBuyer

func isParty(role Role) bool {
	return role == RoleBuyer || role == RoleSeller || role == RoleArbiter
}

// RaiseDispute moves a funded escrow into arbitration. Raising again while
// DISPUTED only pushes the deadline forward; the counters are not touched.
func (e *Engine) RaiseDispute(id [32]byte, actor [20]byte) error {
	return e.mutate("raiseDispute", id, func(tx *transition) error {
		esc := tx.esc
		role := esc.RoleOf(actor)
		if !isParty(role) {
			return fmt.Errorf("%w: %s cannot raise a dispute", ErrWrongParty, role)
		}
		if esc.State != StateFunded && esc.State != StateDisputed {
			return fmt.Errorf("%w: cannot dispute in %s", ErrWrongState, esc.State)
		}
		deadline := tx.now + e.params.DisputeWindow
		if esc.DisputeDeadline > deadline {
			deadline = esc.DisputeDeadline
		}
		esc.DisputeDeadline = deadline
		if esc.State == StateFunded {
			esc.State = StateDisputed
			esc.DisputedBy = actor
			if role != RoleArbiter {
				tx.increment(actor, fees.StatDisputesRaised)
			}
		}
		tx.emit(newDisputeEvent(EventTypeDisputed, esc, actor))
		return nil
	})
}

// ResolveDispute applies the original arbiter's ruling.
func (e *Engine) ResolveDispute(id [32]byte, arbiter [20]byte, ruling Ruling) error {
	return e.mutate("resolveDispute", id, func(tx *transition) error {
		esc := tx.esc
		if esc.RoleOf(arbiter) != RoleArbiter {
			return fmt.Errorf("%w: only the arbiter resolves disputes", ErrWrongParty)
		}
		if esc.State != StateDisputed {
			return fmt.Errorf("%w: cannot resolve in %s", ErrWrongState, esc.State)
		}
		return tx.applyRuling(ruling, arbiter, true)
	})
}

// EscalateToProtocol hands arbitration to the protocol arbiter once the
// dispute window has lapsed.
func (e *Engine) EscalateToProtocol(id [32]byte, actor [20]byte) error {
	return e.mutate("escalateToProtocol", id, func(tx *transition) error {
		esc := tx.esc
		if !isParty(esc.RoleOf(actor)) {
			return fmt.Errorf("%w: only a party can escalate", ErrWrongParty)
		}
		if esc.State != StateDisputed {
			return fmt.Errorf("%w: cannot escalate in %s", ErrWrongState, esc.State)
		}
		if tx.now <= esc.DisputeDeadline {
			return fmt.Errorf("%w: dispute window open until %d", ErrDeadlineNotReached, esc.DisputeDeadline)
		}
		esc.ActiveArbiter = e.params.ProtocolArbiter
		esc.DisputeDeadline = tx.now + e.params.EscalationWindow
		esc.State = StateEscalated
		tx.emit(newDisputeEvent(EventTypeEscalated, esc, actor))
		return nil
	})
}

// ResolveEscalation applies the protocol arbiter's ruling within the
// escalation window.
func (e *Engine) ResolveEscalation(id [32]byte, arbiter [20]byte, ruling Ruling) error {
	return e.mutate("resolveEscalation", id, func(tx *transition) error {
		esc := tx.esc
		if esc.RoleOf(arbiter) != RoleProtocolArbiter {
			return fmt.Errorf("%w: only the protocol arbiter resolves escalations", ErrWrongParty)
		}
		if esc.State != StateEscalated {
			return fmt.Errorf("%w: cannot resolve escalation in %s", ErrWrongState, esc.State)
		}
		if tx.now > esc.DisputeDeadline {
			return fmt.Errorf("%w: escalation window closed at %d", ErrDeadlinePassed, esc.DisputeDeadline)
		}
		return tx.applyRuling(ruling, arbiter, true)
	})
}

// ClaimTimeout settles an escalated escrow whose escalation window lapsed,
// applying TimeoutRuling. Nobody is recorded as having lost the dispute.
func (e *Engine) ClaimTimeout(id [32]byte, actor [20]byte) error {
	return e.mutate("claimTimeout", id, func(tx *transition) error {
		esc := tx.esc
		role := esc.RoleOf(actor)
		if !isParty(role) && role != RoleProtocolArbiter {
			return fmt.Errorf("%w: only a party can claim a timeout", ErrWrongParty)
		}
		if esc.State.Terminal() {
			return fmt.Errorf("%w: %s", ErrAlreadyTerminal, esc.State)
		}
		if esc.State != StateEscalated {
			return fmt.Errorf("%w: cannot claim timeout in %s", ErrWrongState, esc.State)
		}
		if tx.now <= esc.DisputeDeadline {
			return fmt.Errorf("%w: escalation window open until %d", ErrDeadlineNotReached, esc.DisputeDeadline)
		}
		tx.emit(newDisputeEvent(EventTypeTimedOut, esc, actor))
		return tx.applyRuling(TimeoutRuling, actor, false)
	})
}

func (tx *transition) applyRuling(ruling Ruling, by [20]byte, adjudicated bool) error {
	esc := tx.esc
	switch ruling {
	case RulingReleaseToSeller:
		if err := tx.settleRelease(true); err != nil {
			return err
		}
		if adjudicated {
			tx.increment(esc.Buyer, fees.StatDisputesLost)
		}
	case RulingRefundBuyer:
		if err := tx.settleRefund(); err != nil {
			return err
		}
		if adjudicated {
			tx.increment(esc.Seller, fees.StatDisputesLost)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRuling, ruling)
	}
	esc.Resolution = ruling
	tx.emit(newDisputeEvent(EventTypeResolved, esc, by))
	if esc.State == StateReleased {
		tx.emit(newEscrowEvent(EventTypeReleased, esc))
	} else {
		tx.emit(newEscrowEvent(EventTypeRefunded, esc))
	}
	return nil
}
