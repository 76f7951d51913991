package rpc

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tradeescrow/native/escrow"
)

// mustCaller returns the authenticated identity. Every /v1 route sits behind
// the auth middleware, so a missing caller is a wiring fault.
func mustCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "caller identity missing")
	}
	return caller, ok
}

func escrowIDParam(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	id, err := parseHash32(chi.URLParam(r, "id"), false)
	if err != nil {
		badRequest(w, err)
		return id, false
	}
	return id, true
}

// actorRoute adapts engine operations whose only inputs are the escrow and
// the caller.
func (s *Server) actorRoute(op func(id [32]byte, actor [20]byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := mustCaller(w, r)
		if !ok {
			return
		}
		id, ok := escrowIDParam(w, r)
		if !ok {
			return
		}
		if err := op(id, caller); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.writeView(w, r, id, http.StatusOK)
	}
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, id [32]byte, status int) {
	view, err := s.deps.Engine.View(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, status, viewToJSON(view))
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	var req initiateRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	seller, err := parseIdentity(req.Seller)
	if err != nil {
		badRequest(w, err)
		return
	}
	arbiter, err := parseIdentity(req.Arbiter)
	if err != nil {
		badRequest(w, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		badRequest(w, err)
		return
	}
	amount, err := parsePositiveBigInt(req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}
	dataHash, err := parseHash32(req.TradeDataHash, true)
	if err != nil {
		badRequest(w, err)
		return
	}
	terms, err := parseTerms(req)
	if err != nil {
		badRequest(w, err)
		return
	}
	esc, err := s.deps.Engine.Initiate(caller, escrow.InitiateParams{
		Buyer:         caller,
		Seller:        seller,
		Arbiter:       arbiter,
		Asset:         asset,
		Amount:        amount,
		TradeID:       req.TradeID,
		TradeDataHash: dataHash,
		Terms:         terms,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeView(w, r, esc.ID, http.StatusCreated)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustCaller(w, r); !ok {
		return
	}
	id, ok := escrowIDParam(w, r)
	if !ok {
		return
	}
	s.writeView(w, r, id, http.StatusOK)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	id, ok := escrowIDParam(w, r)
	if !ok {
		return
	}
	actions, err := s.deps.Engine.AllowedActions(id, caller)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": hex32(id), "actions": actions})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustCaller(w, r); !ok {
		return
	}
	id, ok := escrowIDParam(w, r)
	if !ok {
		return
	}
	if s.deps.Events == nil {
		writeProblem(w, http.StatusNotImplemented, "Unavailable", "event log not configured")
		return
	}
	records, err := s.deps.Events.List(r.Context(), id)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "Internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": hex32(id), "events": records})
}

func (s *Server) handleDocumentProof(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustCaller(w, r); !ok {
		return
	}
	id, ok := escrowIDParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, err)
		return
	}
	view, err := s.deps.Engine.View(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !view.Documents.Committed() {
		s.writeEngineError(w, r, escrow.ErrDocumentsNotCommitted)
		return
	}
	proof, err := escrow.DocumentProof(view.Documents.Hashes, index)
	if err != nil {
		badRequest(w, err)
		return
	}
	leaves := view.Documents.Hashes.Leaves()
	out := proofJSON{
		Index:      index,
		Leaf:       hex32(leaves[index]),
		MerkleRoot: hex32(view.Documents.MerkleRoot),
		Proof:      make([]string, 0, len(proof)),
	}
	for _, sibling := range proof {
		out.Proof = append(out.Proof, hex32(sibling))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.amountRoute(s.deps.Engine.Fund)(w, r)
}

func (s *Server) handleFulfil(w http.ResponseWriter, r *http.Request) {
	s.amountRoute(s.deps.Engine.FulfillCommitment)(w, r)
}

func (s *Server) amountRoute(op func(id [32]byte, actor [20]byte, value *big.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		value, err := parsePositiveBigInt(req.Amount)
		if err != nil {
			badRequest(w, err)
			return
		}
		s.actorRoute(func(id [32]byte, actor [20]byte) error {
			return op(id, actor, value)
		})(w, r)
	}
}

func (s *Server) handleCommitDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	hashes, err := req.hashes()
	if err != nil {
		badRequest(w, err)
		return
	}
	s.actorRoute(func(id [32]byte, seller [20]byte) error {
		return s.deps.Engine.CommitDocuments(id, seller, hashes)
	})(w, r)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.actorRoute(s.deps.Engine.ConfirmDelivery)(w, r)
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	s.actorRoute(s.deps.Engine.RaiseDispute)(w, r)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	s.actorRoute(s.deps.Engine.EscalateToProtocol)(w, r)
}

func (s *Server) handleClaimTimeout(w http.ResponseWriter, r *http.Request) {
	s.actorRoute(s.deps.Engine.ClaimTimeout)(w, r)
}

func (s *Server) handleClaimDefault(w http.ResponseWriter, r *http.Request) {
	s.actorRoute(s.deps.Engine.ClaimDefaultedCommitment)(w, r)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	s.rulingRoute(s.deps.Engine.ResolveDispute)(w, r)
}

func (s *Server) handleResolveEscalation(w http.ResponseWriter, r *http.Request) {
	s.rulingRoute(s.deps.Engine.ResolveEscalation)(w, r)
}

func (s *Server) rulingRoute(op func(id [32]byte, arbiter [20]byte, ruling escrow.Ruling) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rulingRequest
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		ruling, err := escrow.ParseRuling(req.Ruling)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.actorRoute(func(id [32]byte, arbiter [20]byte) error {
			return op(id, arbiter, ruling)
		})(w, r)
	}
}

func (s *Server) handleTransferReceivable(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	receivableID, err := parseHash32(chi.URLParam(r, "id"), false)
	if err != nil {
		badRequest(w, err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	to, err := parseIdentity(req.To)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.deps.Engine.TransferReceivable(receivableID, caller, to); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": hex32(receivableID), "owner": hex20(to)})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	identity := caller
	if raw := r.URL.Query().Get("identity"); raw != "" {
		parsed, err := parseIdentity(raw)
		if err != nil {
			badRequest(w, err)
			return
		}
		identity = parsed
	}
	quote, err := s.deps.Engine.Quote(identity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteToJSON(identity, quote))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	asset, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		badRequest(w, err)
		return
	}
	balance, err := s.deps.Bank.Balance(caller, asset)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	locked, err := s.deps.Bank.Locked(caller, asset)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{
		Identity: hex20(caller),
		Asset:    hex20(asset),
		Balance:  amountString(balance),
		Locked:   amountString(locked),
	})
}

func (s *Server) handlePartyEscrows(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	identity, err := parseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		badRequest(w, err)
		return
	}
	if identity != caller && !s.isOperator(caller) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "may only list own escrows")
		return
	}
	ids, err := s.deps.Index.EscrowsByParty(identity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, hex32(id))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"identity": hex20(identity), "escrows": out})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	identity, err := parseIdentity(req.Identity)
	if err != nil {
		badRequest(w, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		badRequest(w, err)
		return
	}
	amount, err := parsePositiveBigInt(req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.deps.Bank.Deposit(identity, asset, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	balance, err := s.deps.Bank.Balance(identity, asset)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	locked, err := s.deps.Bank.Locked(identity, asset)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{
		Identity: hex20(identity),
		Asset:    hex20(asset),
		Balance:  amountString(balance),
		Locked:   amountString(locked),
	})
}

func (s *Server) handleKYC(w http.ResponseWriter, r *http.Request) {
	var req kycRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	identity, err := parseIdentity(req.Identity)
	if err != nil {
		badRequest(w, err)
		return
	}
	if req.Approved {
		err = s.deps.Approvals.Approve(identity, req.Reference)
	} else {
		err = s.deps.Approvals.Revoke(identity, req.Reference)
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeApproval(w, r, identity)
}

func (s *Server) handleKYCStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := parseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		badRequest(w, err)
		return
	}
	s.writeApproval(w, r, identity)
}

func (s *Server) writeApproval(w http.ResponseWriter, r *http.Request, identity [20]byte) {
	approval, _, err := s.deps.Approvals.Approval(identity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalToJSON(identity, approval))
}
