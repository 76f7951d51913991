package state

import (
	"fmt"

	"tradeescrow/native/escrow"
	"tradeescrow/native/fees"
)

var userStatsPrefix = []byte("reputation/stats/")

func userStatsKey(identity [20]byte) []byte {
	return append(append([]byte(nil), userStatsPrefix...), identity[:]...)
}

type storedUserStats struct {
	SuccessfulTrades uint64
	DisputesRaised   uint64
	DisputesLost     uint64
}

// UserStatsGet returns the trade history of identity. Unknown identities have
// zero history.
func (m *Manager) UserStatsGet(identity [20]byte) (fees.UserStats, error) {
	var stored storedUserStats
	if _, err := m.KVGet(userStatsKey(identity), &stored); err != nil {
		return fees.UserStats{}, err
	}
	return fees.UserStats{
		SuccessfulTrades: stored.SuccessfulTrades,
		DisputesRaised:   stored.DisputesRaised,
		DisputesLost:     stored.DisputesLost,
	}, nil
}

// stageUserStats adds increments to b. Several increments of one identity are
// folded into a single write. Callers must hold the manager's write lock.
func (m *Manager) stageUserStats(b *Batch, increments []escrow.StatIncrement) error {
	if len(increments) == 0 {
		return nil
	}
	order := make([][20]byte, 0, len(increments))
	pending := make(map[[20]byte]*fees.UserStats, len(increments))
	for _, inc := range increments {
		stats, ok := pending[inc.Identity]
		if !ok {
			current, err := m.UserStatsGet(inc.Identity)
			if err != nil {
				return err
			}
			stats = &current
			pending[inc.Identity] = stats
			order = append(order, inc.Identity)
		}
		switch inc.Field {
		case fees.StatSuccessfulTrades:
			stats.SuccessfulTrades++
		case fees.StatDisputesRaised:
			stats.DisputesRaised++
		case fees.StatDisputesLost:
			stats.DisputesLost++
		default:
			return fmt.Errorf("reputation: unknown stats field %d", inc.Field)
		}
	}
	for _, identity := range order {
		stats := pending[identity]
		stored := &storedUserStats{
			SuccessfulTrades: stats.SuccessfulTrades,
			DisputesRaised:   stats.DisputesRaised,
			DisputesLost:     stats.DisputesLost,
		}
		if err := b.Put(userStatsKey(identity), stored); err != nil {
			return err
		}
	}
	return nil
}
