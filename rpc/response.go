package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tradeescrow/native/bank"
	"tradeescrow/native/escrow"
	"tradeescrow/native/kyc"
)

type problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Transient bool   `json:"transient,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, problem{Code: code, Message: message})
}

// kindOf extends the engine's rejection kinds with the ledger errors the API
// can surface directly.
func kindOf(err error) string {
	if kind := escrow.Kind(err); kind != "Internal" {
		return kind
	}
	switch {
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrOverflow):
		return "InvalidAmount"
	case errors.Is(err, bank.ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, kyc.ErrInvalidIdentity):
		return "InvalidParty"
	}
	return "Internal"
}

// statusFor maps an engine rejection kind onto an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "NotFound", "ReceivableNotFound":
		return http.StatusNotFound
	case "WrongParty", "NotApproved":
		return http.StatusForbidden
	case "InvalidParty", "InvalidAmount", "InvalidCollateral", "InvalidMaturity",
		"InvalidTradeId", "AmountMismatch", "MissingDocument", "InvalidRuling":
		return http.StatusBadRequest
	case "ModulePaused", "TransferFailed", "StatsUnavailable":
		return http.StatusServiceUnavailable
	case "Internal":
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

// writeEngineError reports an engine failure. Internal errors are logged and
// their message withheld.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := kindOf(err)
	status := statusFor(kind)
	body := problem{Code: kind, Message: err.Error(), Transient: escrow.IsTransient(err)}
	recordSpanError(r.Context(), kind, err)
	if status == http.StatusInternalServerError {
		s.logger.Error("escrow operation failed", "path", r.URL.Path, "error", err)
		body.Message = "internal error"
	}
	if body.Transient {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, err error) {
	writeProblem(w, http.StatusBadRequest, "InvalidRequest", err.Error())
}

// decodeBody decodes a bounded JSON body, rejecting unknown fields. An empty
// body leaves out untouched.
func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("invalid JSON body: " + strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
