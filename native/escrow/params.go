package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"tradeescrow/native/fees"
)

const (
	// DefaultDisputeWindow is the arbitration window opened by RaiseDispute.
	DefaultDisputeWindow int64 = 14 * 24 * 60 * 60
	// DefaultEscalationWindow is the window granted to the protocol arbiter.
	DefaultEscalationWindow int64 = 7 * 24 * 60 * 60

	secondsPerDay int64 = 24 * 60 * 60
	maxBps              = 10_000
)

// Params is the deployment context of one engine instance. It replaces any
// notion of an ambient "current contract": two deployments are two engines.
type Params struct {
	DeploymentID    string
	ProtocolArbiter [20]byte
	FeeTreasury     [20]byte

	MinAmount *big.Int
	MaxAmount *big.Int

	MinCollateralBps uint32
	MaxCollateralBps uint32
	MinMaturityDays  uint32
	MaxMaturityDays  uint32

	DisputeWindow    int64
	EscalationWindow int64

	Tiers fees.Schedule
}

// DefaultParams returns bounds suitable for local deployments. The protocol
// arbiter and fee treasury must still be supplied.
func DefaultParams() Params {
	return Params{
		DeploymentID:     "local",
		MinAmount:        big.NewInt(1),
		MaxAmount:        new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil),
		MinCollateralBps: 1_000,
		MaxCollateralBps: 5_000,
		MinMaturityDays:  1,
		MaxMaturityDays:  365,
		DisputeWindow:    DefaultDisputeWindow,
		EscalationWindow: DefaultEscalationWindow,
		Tiers:            fees.DefaultSchedule(),
	}
}

// Validate checks internal consistency of the deployment context.
func (p Params) Validate() error {
	if strings.TrimSpace(p.DeploymentID) == "" {
		return errors.New("escrow params: deployment id required")
	}
	if p.ProtocolArbiter == ([20]byte{}) {
		return errors.New("escrow params: protocol arbiter required")
	}
	if p.FeeTreasury == ([20]byte{}) {
		return errNilTreasury
	}
	if p.MinAmount == nil || p.MinAmount.Sign() <= 0 {
		return errors.New("escrow params: min amount must be positive")
	}
	if p.MaxAmount == nil || p.MaxAmount.Cmp(p.MinAmount) < 0 {
		return errors.New("escrow params: max amount below min amount")
	}
	if p.MinCollateralBps == 0 || p.MinCollateralBps > p.MaxCollateralBps || p.MaxCollateralBps > maxBps {
		return fmt.Errorf("escrow params: collateral bps bounds [%d,%d] invalid", p.MinCollateralBps, p.MaxCollateralBps)
	}
	if p.MinMaturityDays == 0 || p.MinMaturityDays > p.MaxMaturityDays {
		return fmt.Errorf("escrow params: maturity bounds [%d,%d] invalid", p.MinMaturityDays, p.MaxMaturityDays)
	}
	if p.DisputeWindow <= 0 || p.EscalationWindow <= 0 {
		return errors.New("escrow params: dispute and escalation windows must be positive")
	}
	return p.Tiers.Validate()
}

func (p Params) clone() Params {
	out := p
	out.MinAmount = cloneBigInt(p.MinAmount)
	out.MaxAmount = cloneBigInt(p.MaxAmount)
	return out
}
