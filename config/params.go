package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tradeescrow/native/escrow"
	"tradeescrow/native/fees"
)

// EscrowParams converts the escrow and tier sections into the engine's
// deployment context.
func (c *Config) EscrowParams() (escrow.Params, error) {
	e := c.Escrow
	params := escrow.Params{
		DeploymentID:     strings.TrimSpace(e.DeploymentID),
		MinCollateralBps: e.MinCollateralBps,
		MaxCollateralBps: e.MaxCollateralBps,
		MinMaturityDays:  e.MinMaturityDays,
		MaxMaturityDays:  e.MaxMaturityDays,
		DisputeWindow:    int64(e.DisputeWindowSecs),
		EscalationWindow: int64(e.EscalationWindowSecs),
		Tiers:            c.TierSchedule(),
	}
	var err error
	if params.ProtocolArbiter, err = ParseIdentity(e.ProtocolArbiter); err != nil {
		return params, fmt.Errorf("invalid escrow.ProtocolArbiter: %w", err)
	}
	if params.FeeTreasury, err = ParseIdentity(e.FeeTreasury); err != nil {
		return params, fmt.Errorf("invalid escrow.FeeTreasury: %w", err)
	}
	if params.MinAmount, err = parseUintAmount(e.MinAmount); err != nil {
		return params, fmt.Errorf("invalid escrow.MinAmount: %w", err)
	}
	if params.MaxAmount, err = parseUintAmount(e.MaxAmount); err != nil {
		return params, fmt.Errorf("invalid escrow.MaxAmount: %w", err)
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// TierSchedule converts the tier section into a fee schedule.
func (c *Config) TierSchedule() fees.Schedule {
	t := c.Tiers
	return fees.Schedule{
		SilverTrades:          t.SilverTrades,
		GoldTrades:            t.GoldTrades,
		DiamondTrades:         t.DiamondTrades,
		SilverCapDisputesLost: t.SilverCapDisputesLost,
		BronzeCapDisputesLost: t.BronzeCapDisputesLost,
		FeeBps:                [4]uint32{t.BronzeFeeBps, t.SilverFeeBps, t.GoldFeeBps, t.DiamondFeeBps},
	}
}

// ApprovedIdentities returns the parsed KYC seed list.
func (c *Config) ApprovedIdentities() ([][20]byte, error) {
	return parseIdentities(c.KYC.Approved)
}

// OperatorIdentities returns the parsed operator list.
func (c *Config) OperatorIdentities() ([][20]byte, error) {
	return parseIdentities(c.KYC.Operators)
}

func parseIdentities(raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		id, err := ParseIdentity(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ParseIdentity parses a 0x-prefixed 20-byte hex identity. The zero identity
// is rejected.
func ParseIdentity(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("identity %q is not 20-byte hex", raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return [20]byte{}, fmt.Errorf("identity %q is zero", raw)
	}
	return [20]byte(addr), nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}
