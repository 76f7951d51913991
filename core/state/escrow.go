package state

import (
	"fmt"
	"math/big"

	"tradeescrow/native/escrow"
	"tradeescrow/native/fees"
)

var (
	escrowRecordPrefix     = []byte("escrow/record/")
	escrowDocumentsPrefix  = []byte("escrow/documents/")
	escrowReceivablePrefix = []byte("escrow/receivable/")
	escrowPartyIndexPrefix = []byte("escrow/party/")
	escrowListKey          = []byte("escrow/list")
)

func escrowRecordKey(id [32]byte) []byte {
	return append(append([]byte(nil), escrowRecordPrefix...), id[:]...)
}

func escrowDocumentsKey(id [32]byte) []byte {
	return append(append([]byte(nil), escrowDocumentsPrefix...), id[:]...)
}

func escrowReceivableKey(id [32]byte) []byte {
	return append(append([]byte(nil), escrowReceivablePrefix...), id[:]...)
}

func escrowPartyIndexKey(identity [20]byte) []byte {
	return append(append([]byte(nil), escrowPartyIndexPrefix...), identity[:]...)
}

type storedEscrow struct {
	ID                  [32]byte
	Buyer               [20]byte
	Seller              [20]byte
	Arbiter             [20]byte
	ActiveArbiter       [20]byte
	Asset               [20]byte
	Amount              *big.Int
	TradeID             string
	TradeDataHash       [32]byte
	State               uint8
	DisputeDeadline     *big.Int
	DisputedBy          [20]byte
	Resolution          uint8
	FeeTier             uint8
	FeeRateBps          uint32
	Mode                uint8
	CollateralBps       uint32
	CollateralAmount    *big.Int
	MaturityDate        *big.Int
	CommitmentFulfilled bool
	Custody             *big.Int
	CreatedAt           *big.Int
	FundedAt            *big.Int
	SettledAt           *big.Int
}

func nonNegative(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func unixOf(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

func newStoredEscrow(e *escrow.Escrow) *storedEscrow {
	return &storedEscrow{
		ID:                  e.ID,
		Buyer:               e.Buyer,
		Seller:              e.Seller,
		Arbiter:             e.Arbiter,
		ActiveArbiter:       e.ActiveArbiter,
		Asset:               e.Asset,
		Amount:              nonNegative(e.Amount),
		TradeID:             e.TradeID,
		TradeDataHash:       e.TradeDataHash,
		State:               uint8(e.State),
		DisputeDeadline:     big.NewInt(e.DisputeDeadline),
		DisputedBy:          e.DisputedBy,
		Resolution:          uint8(e.Resolution),
		FeeTier:             uint8(e.FeeTier),
		FeeRateBps:          e.FeeRateBps,
		Mode:                uint8(e.Mode),
		CollateralBps:       e.CollateralBps,
		CollateralAmount:    nonNegative(e.CollateralAmount),
		MaturityDate:        big.NewInt(e.MaturityDate),
		CommitmentFulfilled: e.CommitmentFulfilled,
		Custody:             nonNegative(e.Custody),
		CreatedAt:           big.NewInt(e.CreatedAt),
		FundedAt:            big.NewInt(e.FundedAt),
		SettledAt:           big.NewInt(e.SettledAt),
	}
}

func (s *storedEscrow) toEscrow() (*escrow.Escrow, error) {
	state := escrow.State(s.State)
	if !state.Valid() {
		return nil, fmt.Errorf("escrow: invalid stored state %d", s.State)
	}
	return &escrow.Escrow{
		ID:                  s.ID,
		Buyer:               s.Buyer,
		Seller:              s.Seller,
		Arbiter:             s.Arbiter,
		ActiveArbiter:       s.ActiveArbiter,
		Asset:               s.Asset,
		Amount:              nonNegative(s.Amount),
		TradeID:             s.TradeID,
		TradeDataHash:       s.TradeDataHash,
		State:               state,
		DisputeDeadline:     unixOf(s.DisputeDeadline),
		DisputedBy:          s.DisputedBy,
		Resolution:          escrow.Ruling(s.Resolution),
		FeeTier:             fees.Tier(s.FeeTier),
		FeeRateBps:          s.FeeRateBps,
		Mode:                escrow.Mode(s.Mode),
		CollateralBps:       s.CollateralBps,
		CollateralAmount:    nonNegative(s.CollateralAmount),
		MaturityDate:        unixOf(s.MaturityDate),
		CommitmentFulfilled: s.CommitmentFulfilled,
		Custody:             nonNegative(s.Custody),
		CreatedAt:           unixOf(s.CreatedAt),
		FundedAt:            unixOf(s.FundedAt),
		SettledAt:           unixOf(s.SettledAt),
	}, nil
}

type storedDocuments struct {
	EscrowID            [32]byte
	Invoice             [32]byte
	BillOfLading        [32]byte
	PackingList         [32]byte
	CertificateOfOrigin [32]byte
	MerkleRoot          [32]byte
	CommittedAt         uint64
}

type storedReceivable struct {
	ID               [32]byte
	EscrowID         [32]byte
	Owner            [20]byte
	Asset            [20]byte
	FaceValue        *big.Int
	CollateralAmount *big.Int
	MaturityDate     *big.Int
	IssuedAt         *big.Int
	Settled          bool
}

// EscrowGet loads the escrow record for id.
func (m *Manager) EscrowGet(id [32]byte) (*escrow.Escrow, bool, error) {
	var stored storedEscrow
	ok, err := m.KVGet(escrowRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	esc, err := stored.toEscrow()
	if err != nil {
		return nil, false, err
	}
	return esc, true, nil
}

// EscrowDocumentsGet loads the committed document set of an escrow.
func (m *Manager) EscrowDocumentsGet(id [32]byte) (*escrow.DocumentSet, bool, error) {
	var stored storedDocuments
	ok, err := m.KVGet(escrowDocumentsKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &escrow.DocumentSet{
		EscrowID: stored.EscrowID,
		Hashes: escrow.DocumentHashes{
			Invoice:             stored.Invoice,
			BillOfLading:        stored.BillOfLading,
			PackingList:         stored.PackingList,
			CertificateOfOrigin: stored.CertificateOfOrigin,
		},
		MerkleRoot:  stored.MerkleRoot,
		CommittedAt: int64(stored.CommittedAt),
	}, true, nil
}

// ReceivableGet loads a receivable by its token identifier.
func (m *Manager) ReceivableGet(id [32]byte) (*escrow.Receivable, bool, error) {
	var stored storedReceivable
	ok, err := m.KVGet(escrowReceivableKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &escrow.Receivable{
		ID:               stored.ID,
		EscrowID:         stored.EscrowID,
		Owner:            stored.Owner,
		Asset:            stored.Asset,
		FaceValue:        nonNegative(stored.FaceValue),
		CollateralAmount: nonNegative(stored.CollateralAmount),
		MaturityDate:     unixOf(stored.MaturityDate),
		IssuedAt:         unixOf(stored.IssuedAt),
		Settled:          stored.Settled,
	}, true, nil
}

// EscrowApply writes every record of update and its stat increments in a
// single batch. New escrows are also added to the global list and to the index
// of each party.
func (m *Manager) EscrowApply(update *escrow.Update) error {
	if update == nil || update.Escrow == nil {
		return fmt.Errorf("escrow: update requires an escrow record")
	}
	esc := update.Escrow
	return m.Update(func(b *Batch) error {
		exists, err := m.KVGet(escrowRecordKey(esc.ID), nil)
		if err != nil {
			return err
		}
		if err := b.Put(escrowRecordKey(esc.ID), newStoredEscrow(esc)); err != nil {
			return err
		}
		if docs := update.Documents; docs != nil {
			stored := &storedDocuments{
				EscrowID:            docs.EscrowID,
				Invoice:             docs.Hashes.Invoice,
				BillOfLading:        docs.Hashes.BillOfLading,
				PackingList:         docs.Hashes.PackingList,
				CertificateOfOrigin: docs.Hashes.CertificateOfOrigin,
				MerkleRoot:          docs.MerkleRoot,
				CommittedAt:         uint64(docs.CommittedAt),
			}
			if err := b.Put(escrowDocumentsKey(docs.EscrowID), stored); err != nil {
				return err
			}
		}
		if rec := update.Receivable; rec != nil {
			stored := &storedReceivable{
				ID:               rec.ID,
				EscrowID:         rec.EscrowID,
				Owner:            rec.Owner,
				Asset:            rec.Asset,
				FaceValue:        nonNegative(rec.FaceValue),
				CollateralAmount: nonNegative(rec.CollateralAmount),
				MaturityDate:     big.NewInt(rec.MaturityDate),
				IssuedAt:         big.NewInt(rec.IssuedAt),
				Settled:          rec.Settled,
			}
			if err := b.Put(escrowReceivableKey(rec.ID), stored); err != nil {
				return err
			}
		}
		if err := m.stageUserStats(b, update.Stats); err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := m.appendInto(b, escrowListKey, esc.ID[:]); err != nil {
			return err
		}
		for _, party := range [][20]byte{esc.Buyer, esc.Seller, esc.Arbiter} {
			if err := m.appendInto(b, escrowPartyIndexKey(party), esc.ID[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// EscrowIDs returns every escrow identifier in creation order.
func (m *Manager) EscrowIDs() ([][32]byte, error) {
	return m.idList(escrowListKey)
}

// EscrowsByParty returns the escrows in which identity is buyer, seller or
// arbiter, in creation order.
func (m *Manager) EscrowsByParty(identity [20]byte) ([][32]byte, error) {
	return m.idList(escrowPartyIndexKey(identity))
}

func (m *Manager) idList(key []byte) ([][32]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("escrow: corrupt index entry of %d bytes", len(entry))
		}
		var id [32]byte
		copy(id[:], entry)
		out = append(out, id)
	}
	return out, nil
}
