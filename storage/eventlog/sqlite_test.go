package eventlog

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"tradeescrow/core/events"
	"tradeescrow/core/types"
)

type wrapped struct{ evt *types.Event }

func (w wrapped) EventType() string    { return w.evt.Type }
func (w wrapped) Event() *types.Event { return w.evt }

type bare string

func (b bare) EventType() string { return string(b) }

func openLog(t *testing.T) *SQLiteLog {
	t.Helper()
	log, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestListReturnsEscrowEventsInOrder(t *testing.T) {
	log := openLog(t)
	var id, other [32]byte
	id[0] = 0x01
	other[0] = 0x02
	hexID := hex.EncodeToString(id[:])

	var emitter events.Emitter = log
	emitter.Emit(wrapped{&types.Event{Type: "escrow.initiated", Attributes: map[string]string{"id": hexID, "amount": "100"}}})
	emitter.Emit(wrapped{&types.Event{Type: "escrow.initiated", Attributes: map[string]string{"id": hex.EncodeToString(other[:])}}})
	emitter.Emit(wrapped{&types.Event{Type: "escrow.funded", Attributes: map[string]string{"id": hexID}}})
	emitter.Emit(bare("kyc.approved"))

	records, err := log.List(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "escrow.initiated", records[0].Type)
	require.Equal(t, "100", records[0].Attributes["amount"])
	require.Equal(t, "escrow.funded", records[1].Type)
	require.Less(t, records[0].Sequence, records[1].Sequence)
	require.Equal(t, hexID, records[1].EscrowID)
}

func TestSincePagesThroughAllEvents(t *testing.T) {
	log := openLog(t)
	for i := 0; i < 5; i++ {
		_, err := log.Append(context.Background(), bare("reputation.stats_incremented"))
		require.NoError(t, err)
	}

	first, err := log.Since(context.Background(), 0, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	rest, err := log.Since(context.Background(), first[2].Sequence, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Empty(t, rest[0].EscrowID)
	require.NotNil(t, rest[0].Attributes)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}
