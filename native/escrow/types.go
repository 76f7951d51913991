package escrow

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradeescrow/native/fees"
)

// State represents the lifecycle states of an escrow transaction.
type State uint8

const (
	StateDraft State = iota
	StateFunded
	StateDisputed
	StateEscalated
	StateReleased
	StateRefunded
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "DRAFT"
	case StateFunded:
		return "FUNDED"
	case StateDisputed:
		return "DISPUTED"
	case StateEscalated:
		return "ESCALATED"
	case StateReleased:
		return "RELEASED"
	case StateRefunded:
		return "REFUNDED"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool { return s <= StateRefunded }

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool { return s == StateReleased || s == StateRefunded }

// Mode selects how much of the trade value is locked upfront.
type Mode uint8

const (
	ModeCashLock Mode = iota
	ModePaymentCommitment
)

func (m Mode) String() string {
	switch m {
	case ModeCashLock:
		return "CASH_LOCK"
	case ModePaymentCommitment:
		return "PAYMENT_COMMITMENT"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// Ruling is the outcome applied when a dispute is settled.
type Ruling uint8

const (
	RulingNone Ruling = iota
	RulingReleaseToSeller
	RulingRefundBuyer
)

func (r Ruling) String() string {
	switch r {
	case RulingReleaseToSeller:
		return "RELEASE_TO_SELLER"
	case RulingRefundBuyer:
		return "REFUND_BUYER"
	default:
		return "NONE"
	}
}

// ParseRuling accepts the canonical names as well as the short "release" and
// "refund" forms.
func ParseRuling(raw string) (Ruling, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RELEASE_TO_SELLER", "RELEASE":
		return RulingReleaseToSeller, nil
	case "REFUND_BUYER", "REFUND":
		return RulingRefundBuyer, nil
	default:
		return RulingNone, fmt.Errorf("%w: %q", ErrInvalidRuling, raw)
	}
}

// Terms is the tagged variant describing the escrow mode at initiation. The
// concrete types are CashLock and PaymentCommitment.
type Terms interface {
	Mode() Mode
}

// CashLock locks the full trade amount when the buyer funds the escrow.
type CashLock struct{}

// Mode implements Terms.
func (CashLock) Mode() Mode { return ModeCashLock }

// PaymentCommitment locks CollateralBps of the amount upfront; the remainder
// is due within MaturityDays of initiation.
type PaymentCommitment struct {
	CollateralBps uint32
	MaturityDays  uint32
}

// Mode implements Terms.
func (PaymentCommitment) Mode() Mode { return ModePaymentCommitment }

// NativeAsset is the sentinel asset identifier for the chain's native coin.
var NativeAsset = [20]byte{}

// Role identifies how an identity relates to a particular escrow.
type Role uint8

const (
	RoleNone Role = iota
	RoleBuyer
	RoleSeller
	RoleArbiter
	RoleProtocolArbiter
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleArbiter:
		return "arbiter"
	case RoleProtocolArbiter:
		return "protocolArbiter"
	default:
		return "none"
	}
}

// Escrow is the custody record for a single trade. It is created in DRAFT,
// mutated only by engine transitions and retained once terminal.
type Escrow struct {
	ID            [32]byte
	Buyer         [20]byte
	Seller        [20]byte
	Arbiter       [20]byte
	ActiveArbiter [20]byte
	Asset         [20]byte
	Amount        *big.Int
	TradeID       string
	TradeDataHash [32]byte
	State         State

	DisputeDeadline int64
	DisputedBy      [20]byte
	Resolution      Ruling

	// Fee terms are snapshotted when the escrow is drafted and never change.
	FeeTier    fees.Tier
	FeeRateBps uint32

	Mode                Mode
	CollateralBps       uint32
	CollateralAmount    *big.Int
	MaturityDate        int64
	CommitmentFulfilled bool

	// Custody is the amount currently locked on behalf of this escrow.
	Custody *big.Int

	CreatedAt int64
	FundedAt  int64
	SettledAt int64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneBigInt(e.Amount)
	clone.CollateralAmount = cloneBigInt(e.CollateralAmount)
	clone.Custody = cloneBigInt(e.Custody)
	return &clone
}

// FaceValue is the portion of the amount not covered by collateral. It is
// zero for cash-lock escrows.
func (e *Escrow) FaceValue() *big.Int {
	if e == nil || e.Mode != ModePaymentCommitment {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(cloneBigInt(e.Amount), cloneBigInt(e.CollateralAmount))
}

// FundingAmount is the value the buyer must supply to Fund.
func (e *Escrow) FundingAmount() *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	if e.Mode == ModePaymentCommitment {
		return cloneBigInt(e.CollateralAmount)
	}
	return cloneBigInt(e.Amount)
}

// RoleOf resolves the role identity plays in the escrow. The protocol arbiter
// only has a role once the escrow has been escalated to it.
func (e *Escrow) RoleOf(identity [20]byte) Role {
	if e == nil || identity == ([20]byte{}) {
		return RoleNone
	}
	switch identity {
	case e.Buyer:
		return RoleBuyer
	case e.Seller:
		return RoleSeller
	case e.Arbiter:
		return RoleArbiter
	}
	if e.ActiveArbiter != e.Arbiter && identity == e.ActiveArbiter {
		return RoleProtocolArbiter
	}
	return RoleNone
}

// InitiateParams carries the definition of a new escrow.
type InitiateParams struct {
	Buyer         [20]byte
	Seller        [20]byte
	Arbiter       [20]byte
	Asset         [20]byte
	Amount        *big.Int
	TradeID       string
	TradeDataHash [32]byte
	Terms         Terms
}

// EscrowID derives the escrow identifier from the buyer and its trade
// reference, which makes trade references unique per buyer.
func EscrowID(buyer [20]byte, tradeID string) [32]byte {
	return ethcrypto.Keccak256Hash(buyer[:], []byte(strings.TrimSpace(tradeID)))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
