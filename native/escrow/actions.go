package escrow

// Action names an operation a caller may currently perform on an escrow.
type Action string

const (
	ActionFund                     Action = "fund"
	ActionCommitDocuments          Action = "commitDocuments"
	ActionConfirmDelivery          Action = "confirmDelivery"
	ActionRaiseDispute             Action = "raiseDispute"
	ActionResolveDispute           Action = "resolveDispute"
	ActionEscalateToProtocol       Action = "escalateToProtocol"
	ActionResolveEscalation        Action = "resolveEscalation"
	ActionClaimTimeout             Action = "claimTimeout"
	ActionFulfillCommitment        Action = "fulfillCommitment"
	ActionClaimDefaultedCommitment Action = "claimDefaultedCommitment"
	ActionTransferReceivable       Action = "transferReceivable"
)

// AllowedActions derives what caller may do right now, using the same role,
// state and deadline rules the mutating operations enforce. Pause state and
// collaborator checks (KYC, balances) are not reflected.
func (e *Engine) AllowedActions(id [32]byte, caller [20]byte) ([]Action, error) {
	view, err := e.View(id)
	if err != nil {
		return nil, err
	}
	return allowedActions(view, caller, e.now()), nil
}

func allowedActions(v *View, caller [20]byte, now int64) []Action {
	esc := v.Escrow
	role := esc.RoleOf(caller)
	out := make([]Action, 0, 4)
	add := func(ok bool, a Action) {
		if ok {
			out = append(out, a)
		}
	}
	commitment := esc.Mode == ModePaymentCommitment
	switch esc.State {
	case StateDraft:
		add(role == RoleBuyer, ActionFund)
	case StateFunded:
		committed := v.Documents.Committed()
		add(role == RoleSeller && !committed, ActionCommitDocuments)
		add(role == RoleBuyer && committed && (!commitment || esc.CommitmentFulfilled), ActionConfirmDelivery)
		add(isParty(role), ActionRaiseDispute)
		if commitment && !esc.CommitmentFulfilled {
			add(role == RoleBuyer && now <= esc.MaturityDate, ActionFulfillCommitment)
			add(role == RoleSeller && now > esc.MaturityDate, ActionClaimDefaultedCommitment)
		}
	case StateDisputed:
		add(isParty(role), ActionRaiseDispute)
		add(role == RoleArbiter, ActionResolveDispute)
		add(isParty(role) && now > esc.DisputeDeadline, ActionEscalateToProtocol)
	case StateEscalated:
		add(role == RoleProtocolArbiter && now <= esc.DisputeDeadline, ActionResolveEscalation)
		add((isParty(role) || role == RoleProtocolArbiter) && now > esc.DisputeDeadline, ActionClaimTimeout)
	}
	if rec := v.Receivable; rec != nil && !rec.Settled && rec.Owner == caller {
		out = append(out, ActionTransferReceivable)
	}
	return out
}
