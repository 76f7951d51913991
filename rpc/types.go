package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tradeescrow/native/escrow"
	"tradeescrow/native/fees"
	"tradeescrow/native/kyc"
)

type initiateRequest struct {
	TradeID       string `json:"tradeId"`
	TradeDataHash string `json:"tradeDataHash,omitempty"`
	Seller        string `json:"seller"`
	Arbiter       string `json:"arbiter"`
	Asset         string `json:"asset,omitempty"`
	Amount        string `json:"amount"`
	Mode          string `json:"mode,omitempty"`
	CollateralBps uint32 `json:"collateralBps,omitempty"`
	MaturityDays  uint32 `json:"maturityDays,omitempty"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type documentsRequest struct {
	Invoice             string `json:"invoice"`
	BillOfLading        string `json:"billOfLading,omitempty"`
	PackingList         string `json:"packingList,omitempty"`
	CertificateOfOrigin string `json:"certificateOfOrigin,omitempty"`
}

type rulingRequest struct {
	Ruling string `json:"ruling"`
}

type transferRequest struct {
	To string `json:"to"`
}

type depositRequest struct {
	Identity string `json:"identity"`
	Asset    string `json:"asset,omitempty"`
	Amount   string `json:"amount"`
}

type kycRequest struct {
	Identity  string `json:"identity"`
	Approved  bool   `json:"approved"`
	Reference string `json:"reference,omitempty"`
}

type escrowJSON struct {
	ID                  string `json:"id"`
	TradeID             string `json:"tradeId"`
	TradeDataHash       string `json:"tradeDataHash"`
	Buyer               string `json:"buyer"`
	Seller              string `json:"seller"`
	Arbiter             string `json:"arbiter"`
	ActiveArbiter       string `json:"activeArbiter"`
	Asset               string `json:"asset"`
	Amount              string `json:"amount"`
	State               string `json:"state"`
	Mode                string `json:"mode"`
	FeeTier             string `json:"feeTier"`
	FeeBps              uint32 `json:"feeBps"`
	CollateralBps       uint32 `json:"collateralBps,omitempty"`
	CollateralAmount    string `json:"collateralAmount,omitempty"`
	MaturityDate        int64  `json:"maturityDate,omitempty"`
	CommitmentFulfilled bool   `json:"commitmentFulfilled"`
	Custody             string `json:"custody"`
	DisputeDeadline     int64  `json:"disputeDeadline,omitempty"`
	DisputedBy          string `json:"disputedBy,omitempty"`
	Resolution          string `json:"resolution,omitempty"`
	CreatedAt           int64  `json:"createdAt"`
	FundedAt            int64  `json:"fundedAt,omitempty"`
	SettledAt           int64  `json:"settledAt,omitempty"`
}

type documentsJSON struct {
	Invoice             string `json:"invoice"`
	BillOfLading        string `json:"billOfLading"`
	PackingList         string `json:"packingList"`
	CertificateOfOrigin string `json:"certificateOfOrigin"`
	MerkleRoot          string `json:"merkleRoot"`
	CommittedAt         int64  `json:"committedAt"`
}

type receivableJSON struct {
	ID           string `json:"id"`
	EscrowID     string `json:"escrowId"`
	Owner        string `json:"owner"`
	Asset        string `json:"asset"`
	FaceValue    string `json:"faceValue"`
	Collateral   string `json:"collateral"`
	MaturityDate int64  `json:"maturityDate"`
	IssuedAt     int64  `json:"issuedAt"`
	Settled      bool   `json:"settled"`
}

type viewJSON struct {
	Escrow     escrowJSON      `json:"escrow"`
	Documents  *documentsJSON  `json:"documents,omitempty"`
	Receivable *receivableJSON `json:"receivable,omitempty"`
	FaceValue  string          `json:"faceValue"`
}

type quoteJSON struct {
	Identity string `json:"identity"`
	Tier     string `json:"tier"`
	FeeBps   uint32 `json:"feeBps"`
}

type balanceJSON struct {
	Identity string `json:"identity"`
	Asset    string `json:"asset"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

type proofJSON struct {
	Index      int      `json:"index"`
	Leaf       string   `json:"leaf"`
	MerkleRoot string   `json:"merkleRoot"`
	Proof      []string `json:"proof"`
}

type approvalJSON struct {
	Identity  string `json:"identity"`
	Approved  bool   `json:"approved"`
	Reference string `json:"reference,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

func hex20(b [20]byte) string { return "0x" + hex.EncodeToString(b[:]) }
func hex32(b [32]byte) string { return "0x" + hex.EncodeToString(b[:]) }

func optionalHex20(b [20]byte) string {
	if b == ([20]byte{}) {
		return ""
	}
	return hex20(b)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func escrowToJSON(e *escrow.Escrow) escrowJSON {
	out := escrowJSON{
		ID:                  hex32(e.ID),
		TradeID:             e.TradeID,
		TradeDataHash:       hex32(e.TradeDataHash),
		Buyer:               hex20(e.Buyer),
		Seller:              hex20(e.Seller),
		Arbiter:             hex20(e.Arbiter),
		ActiveArbiter:       hex20(e.ActiveArbiter),
		Asset:               hex20(e.Asset),
		Amount:              amountString(e.Amount),
		State:               e.State.String(),
		Mode:                e.Mode.String(),
		FeeTier:             e.FeeTier.String(),
		FeeBps:              e.FeeRateBps,
		CommitmentFulfilled: e.CommitmentFulfilled,
		Custody:             amountString(e.Custody),
		DisputeDeadline:     e.DisputeDeadline,
		DisputedBy:          optionalHex20(e.DisputedBy),
		CreatedAt:           e.CreatedAt,
		FundedAt:            e.FundedAt,
		SettledAt:           e.SettledAt,
	}
	if e.Mode == escrow.ModePaymentCommitment {
		out.CollateralBps = e.CollateralBps
		out.CollateralAmount = amountString(e.CollateralAmount)
		out.MaturityDate = e.MaturityDate
	}
	if e.Resolution != escrow.RulingNone {
		out.Resolution = e.Resolution.String()
	}
	return out
}

func viewToJSON(v *escrow.View) viewJSON {
	out := viewJSON{Escrow: escrowToJSON(v.Escrow), FaceValue: amountString(v.FaceValue)}
	if v.Documents.Committed() {
		h := v.Documents.Hashes
		out.Documents = &documentsJSON{
			Invoice:             hex32(h.Invoice),
			BillOfLading:        hex32(h.BillOfLading),
			PackingList:         hex32(h.PackingList),
			CertificateOfOrigin: hex32(h.CertificateOfOrigin),
			MerkleRoot:          hex32(v.Documents.MerkleRoot),
			CommittedAt:         v.Documents.CommittedAt,
		}
	}
	if r := v.Receivable; r != nil {
		out.Receivable = &receivableJSON{
			ID:           hex32(r.ID),
			EscrowID:     hex32(r.EscrowID),
			Owner:        hex20(r.Owner),
			Asset:        hex20(r.Asset),
			FaceValue:    amountString(r.FaceValue),
			Collateral:   amountString(r.CollateralAmount),
			MaturityDate: r.MaturityDate,
			IssuedAt:     r.IssuedAt,
			Settled:      r.Settled,
		}
	}
	return out
}

func quoteToJSON(identity [20]byte, q fees.Quote) quoteJSON {
	return quoteJSON{Identity: hex20(identity), Tier: q.Tier.String(), FeeBps: q.FeeBps}
}

func approvalToJSON(identity [20]byte, a *kyc.Approval) approvalJSON {
	if a == nil {
		return approvalJSON{Identity: hex20(identity)}
	}
	return approvalJSON{
		Identity:  hex20(identity),
		Approved:  a.Approved,
		Reference: a.Reference,
		UpdatedAt: a.UpdatedAt,
	}
}

// parseIdentity parses a non-zero 0x-prefixed 20-byte identity.
func parseIdentity(raw string) ([20]byte, error) {
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

// parseAsset parses an asset identifier. An empty value selects the native
// asset.
func parseAsset(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "native") {
		return escrow.NativeAsset, nil
	}
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("asset %q is not 20-byte hex", raw)
	}
	return [20]byte(common.HexToAddress(trimmed)), nil
}

// parseHash32 parses a 32-byte hex value. The 0x prefix is optional. An
// empty string yields the zero hash when allowEmpty is set.
func parseHash32(raw string, allowEmpty bool) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if allowEmpty {
			return out, nil
		}
		return out, fmt.Errorf("32-byte hex value required")
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	decoded, err := hexutil.Decode(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid hex %q: %w", raw, err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseTerms(req initiateRequest) (escrow.Terms, error) {
	switch strings.ToUpper(strings.TrimSpace(req.Mode)) {
	case "", "CASH_LOCK":
		return escrow.CashLock{}, nil
	case "PAYMENT_COMMITMENT":
		return escrow.PaymentCommitment{CollateralBps: req.CollateralBps, MaturityDays: req.MaturityDays}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}
}

func (r documentsRequest) hashes() (escrow.DocumentHashes, error) {
	var (
		out escrow.DocumentHashes
		err error
	)
	if out.Invoice, err = parseHash32(r.Invoice, true); err != nil {
		return out, fmt.Errorf("invoice: %w", err)
	}
	if out.BillOfLading, err = parseHash32(r.BillOfLading, true); err != nil {
		return out, fmt.Errorf("billOfLading: %w", err)
	}
	if out.PackingList, err = parseHash32(r.PackingList, true); err != nil {
		return out, fmt.Errorf("packingList: %w", err)
	}
	if out.CertificateOfOrigin, err = parseHash32(r.CertificateOfOrigin, true); err != nil {
		return out, fmt.Errorf("certificateOfOrigin: %w", err)
	}
	return out, nil
}
