package fees

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a reputation bracket derived from a user's trade history.
type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierDiamond
)

// String returns the canonical upper-case tier name.
func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "BRONZE"
	case TierSilver:
		return "SILVER"
	case TierGold:
		return "GOLD"
	case TierDiamond:
		return "DIAMOND"
	default:
		return fmt.Sprintf("TIER(%d)", uint8(t))
	}
}

// Valid reports whether the tier value is within the supported range.
func (t Tier) Valid() bool { return t <= TierDiamond }

// ParseTier resolves a tier from its case-insensitive name.
func ParseTier(name string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "BRONZE":
		return TierBronze, nil
	case "SILVER":
		return TierSilver, nil
	case "GOLD":
		return TierGold, nil
	case "DIAMOND":
		return TierDiamond, nil
	default:
		return TierBronze, fmt.Errorf("fees: unknown tier %q", name)
	}
}

// StatField names one of the monotonically increasing user counters.
type StatField uint8

const (
	StatSuccessfulTrades StatField = iota + 1
	StatDisputesRaised
	StatDisputesLost
)

func (f StatField) String() string {
	switch f {
	case StatSuccessfulTrades:
		return "successfulTrades"
	case StatDisputesRaised:
		return "disputesRaised"
	case StatDisputesLost:
		return "disputesLost"
	default:
		return "unknown"
	}
}

// UserStats are the per-identity counters that feed the tier computation.
type UserStats struct {
	SuccessfulTrades uint64 `json:"successfulTrades"`
	DisputesRaised   uint64 `json:"disputesRaised"`
	DisputesLost     uint64 `json:"disputesLost"`
}

// Schedule holds the trade-count thresholds, dispute caps and fee rates that
// define the tier ladder.
type Schedule struct {
	SilverTrades  uint64
	GoldTrades    uint64
	DiamondTrades uint64

	// Losing this many disputes caps the tier at Silver / Bronze regardless
	// of trade volume. Zero disables the cap.
	SilverCapDisputesLost uint64
	BronzeCapDisputesLost uint64

	FeeBps [4]uint32
}

// DefaultSchedule returns the production tier ladder.
func DefaultSchedule() Schedule {
	return Schedule{
		SilverTrades:          10,
		GoldTrades:            50,
		DiamondTrades:         200,
		SilverCapDisputesLost: 2,
		BronzeCapDisputesLost: 5,
		FeeBps:                [4]uint32{100, 75, 50, 25},
	}
}

// Validate ensures thresholds ascend and fees never increase with tier.
func (s Schedule) Validate() error {
	if s.SilverTrades == 0 || s.SilverTrades >= s.GoldTrades || s.GoldTrades >= s.DiamondTrades {
		return errors.New("fees: tier thresholds must be positive and strictly ascending")
	}
	for i, bps := range s.FeeBps {
		if bps > 10_000 {
			return fmt.Errorf("fees: %s fee bps out of range: %d", Tier(i), bps)
		}
		if i > 0 && bps > s.FeeBps[i-1] {
			return fmt.Errorf("fees: %s fee %d exceeds %s fee %d", Tier(i), bps, Tier(i-1), s.FeeBps[i-1])
		}
	}
	if s.SilverCapDisputesLost > 0 && s.BronzeCapDisputesLost > 0 && s.BronzeCapDisputesLost < s.SilverCapDisputesLost {
		return errors.New("fees: bronze dispute cap must not be below silver dispute cap")
	}
	return nil
}

// TierFor maps user stats onto a tier. Volume decides the uncapped tier; lost
// disputes then cap it.
func (s Schedule) TierFor(stats UserStats) Tier {
	tier := TierBronze
	switch {
	case stats.SuccessfulTrades >= s.DiamondTrades:
		tier = TierDiamond
	case stats.SuccessfulTrades >= s.GoldTrades:
		tier = TierGold
	case stats.SuccessfulTrades >= s.SilverTrades:
		tier = TierSilver
	}
	if s.BronzeCapDisputesLost > 0 && stats.DisputesLost >= s.BronzeCapDisputesLost {
		return TierBronze
	}
	if s.SilverCapDisputesLost > 0 && stats.DisputesLost >= s.SilverCapDisputesLost && tier > TierSilver {
		return TierSilver
	}
	return tier
}

// FeeRate returns the fee in basis points charged to the supplied tier.
func (s Schedule) FeeRate(t Tier) uint32 {
	if !t.Valid() {
		return s.FeeBps[TierBronze]
	}
	return s.FeeBps[t]
}

// Quote bundles the tier and fee rate for a stats snapshot.
type Quote struct {
	Tier   Tier   `json:"tier"`
	FeeBps uint32 `json:"feeBps"`
}

// Quote computes the tier and fee for stats. It is recomputed on every call;
// escrows store the quote taken when they were drafted.
func (s Schedule) Quote(stats UserStats) Quote {
	tier := s.TierFor(stats)
	return Quote{Tier: tier, FeeBps: s.FeeRate(tier)}
}
