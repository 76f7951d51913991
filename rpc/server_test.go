package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"tradeescrow/core/events"
	escrowstate "tradeescrow/core/state"
	"tradeescrow/native/bank"
	"tradeescrow/native/escrow"
	"tradeescrow/native/kyc"
	"tradeescrow/native/reputation"
	"tradeescrow/storage"
	"tradeescrow/storage/eventlog"
)

var (
	testSecret = []byte("test-secret")
	buyerID    = identity(0xb1)
	sellerID   = identity(0x5e)
	arbiterID  = identity(0xa1)
	operatorID = identity(0x0e)
	outsider   = identity(0x99)
	protocolID = identity(0xfa)
	treasuryID = identity(0xfe)
)

func identity(last byte) [20]byte {
	var id [20]byte
	id[19] = last
	return id
}

type testEnv struct {
	server  *httptest.Server
	manager *escrowstate.Manager
	vault   *bank.Vault
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	manager := escrowstate.NewManager(storage.NewMemDB())
	vault := bank.NewVault(manager)
	ledger := reputation.NewLedger(manager)
	registry := kyc.NewRegistry(manager)
	log, err := eventlog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	params := escrow.DefaultParams()
	params.ProtocolArbiter = protocolID
	params.FeeTreasury = treasuryID
	engine, err := escrow.NewEngine(params)
	require.NoError(t, err)
	engine.SetState(manager)
	engine.SetAssets(vault)
	engine.SetStats(ledger)
	engine.SetAccessList(registry)
	engine.SetEmitter(events.Fanout{log})

	cfg := Config{
		JWTSecret:       testSecret,
		Issuer:          "tradeescrow",
		RateLimitPerSec: 1000,
		RateBurst:       1000,
		Operators:       [][20]byte{operatorID},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	srv := NewServer(Deps{
		Engine:    engine,
		Bank:      vault,
		Approvals: registry,
		Index:     manager,
		Events:    log,
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, manager: manager, vault: vault}
}

func token(t *testing.T, subject [20]byte, secret []byte) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "0x" + hex.EncodeToString(subject[:]),
		Issuer:    "tradeescrow",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func (e *testEnv) call(t *testing.T, as [20]byte, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	return e.callWithToken(t, token(t, as, testSecret), method, path, body)
}

func (e *testEnv) callWithToken(t *testing.T, bearer, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func hexOf(id [20]byte) string { return "0x" + hex.EncodeToString(id[:]) }

func (e *testEnv) onboard(t *testing.T) {
	t.Helper()
	for _, id := range [][20]byte{buyerID, sellerID} {
		status, body := e.call(t, operatorID, http.MethodPost, "/v1/operator/kyc", map[string]interface{}{
			"identity": hexOf(id), "approved": true, "reference": "case-1",
		})
		require.Equal(t, http.StatusOK, status, body)
		require.Equal(t, true, body["approved"])
	}
	status, body := e.call(t, operatorID, http.MethodPost, "/v1/operator/deposits", map[string]string{
		"identity": hexOf(buyerID), "amount": "5000",
	})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "5000", body["balance"])
}

func (e *testEnv) initiate(t *testing.T, tradeID string, extra map[string]interface{}) string {
	t.Helper()
	req := map[string]interface{}{
		"tradeId": tradeID,
		"seller":  hexOf(sellerID),
		"arbiter": hexOf(arbiterID),
		"amount":  "1000",
	}
	for k, v := range extra {
		req[k] = v
	}
	status, body := e.call(t, buyerID, http.MethodPost, "/v1/escrows", req)
	require.Equal(t, http.StatusCreated, status, body)
	esc := body["escrow"].(map[string]interface{})
	require.Equal(t, "DRAFT", esc["state"])
	return esc["id"].(string)
}

func stateOf(body map[string]interface{}) string {
	return body["escrow"].(map[string]interface{})["state"].(string)
}

func TestCashLockLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)
	id := env.initiate(t, "PO-1", nil)

	status, body := env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/fund", map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "FUNDED", stateOf(body))

	invoice := strings.Repeat("ab", 32)
	status, body = env.call(t, sellerID, http.MethodPost, "/v1/escrows/"+id+"/documents", map[string]string{"invoice": invoice})
	require.Equal(t, http.StatusOK, status, body)
	require.NotNil(t, body["documents"])

	status, body = env.call(t, buyerID, http.MethodGet, "/v1/escrows/"+id+"/actions", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body["actions"], "confirmDelivery")

	status, body = env.call(t, buyerID, http.MethodGet, "/v1/escrows/"+id+"/documents/0/proof", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "0x"+invoice, body["leaf"])
	require.Len(t, body["proof"], 2)

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/confirm", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "RELEASED", stateOf(body))

	status, body = env.call(t, sellerID, http.MethodGet, "/v1/balances/native", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "990", body["balance"])

	status, body = env.call(t, buyerID, http.MethodGet, "/v1/escrows/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, status)
	var types []string
	for _, rec := range body["events"].([]interface{}) {
		types = append(types, rec.(map[string]interface{})["type"].(string))
	}
	require.Equal(t, []string{
		escrow.EventTypeInitiated,
		escrow.EventTypeFunded,
		escrow.EventTypeDocumentsCommitted,
		escrow.EventTypeReleased,
	}, types)

	status, body = env.call(t, buyerID, http.MethodGet, "/v1/parties/"+hexOf(buyerID)+"/escrows", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []interface{}{id}, body["escrows"])

	status, body = env.call(t, buyerID, http.MethodGet, "/v1/quote", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "BRONZE", body["tier"])
}

func TestDisputeFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)
	id := env.initiate(t, "PO-2", nil)
	status, _ := env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/fund", map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/dispute", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "DISPUTED", stateOf(body))

	status, body = env.call(t, arbiterID, http.MethodPost, "/v1/escrows/"+id+"/resolve", map[string]string{"ruling": "sideways"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "InvalidRuling", body["code"])

	status, body = env.call(t, sellerID, http.MethodPost, "/v1/escrows/"+id+"/resolve", map[string]string{"ruling": "refund"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "WrongParty", body["code"])

	status, body = env.call(t, arbiterID, http.MethodPost, "/v1/escrows/"+id+"/resolve", map[string]string{"ruling": "refund"})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "REFUNDED", stateOf(body))

	status, body = env.call(t, buyerID, http.MethodGet, "/v1/balances/native", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "5000", body["balance"])
	require.Equal(t, "0", body["locked"])
}

func TestRejectionsMapToStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)
	id := env.initiate(t, "PO-3", nil)

	status, body := env.call(t, sellerID, http.MethodPost, "/v1/escrows/"+id+"/fund", map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "WrongParty", body["code"])

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/fund", map[string]string{"amount": "999"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "AmountMismatch", body["code"])

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/confirm", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "WrongState", body["code"])

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows", map[string]interface{}{
		"tradeId": "PO-3", "seller": hexOf(sellerID), "arbiter": hexOf(arbiterID), "amount": "1000",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "TradeExists", body["code"])

	missing := strings.Repeat("00", 31) + "01"
	status, body = env.call(t, buyerID, http.MethodGet, "/v1/escrows/"+missing, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NotFound", body["code"])

	status, _ = env.call(t, buyerID, http.MethodGet, "/v1/escrows/not-hex", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/fund", map[string]string{"amount": "1000", "memo": "x"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "InvalidRequest", body["code"])

	status, body = env.call(t, outsider, http.MethodPost, "/v1/escrows", map[string]interface{}{
		"tradeId": "PO-9", "seller": hexOf(sellerID), "arbiter": hexOf(arbiterID), "amount": "1000",
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "NotApproved", body["code"])
}

func TestPaymentCommitmentReceivableTransfer(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)
	id := env.initiate(t, "PO-4", map[string]interface{}{
		"mode": "payment_commitment", "collateralBps": 2000, "maturityDays": 30,
	})

	status, body := env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/fund", map[string]string{"amount": "200"})
	require.Equal(t, http.StatusOK, status, body)
	status, body = env.call(t, sellerID, http.MethodPost, "/v1/escrows/"+id+"/documents", map[string]string{"invoice": strings.Repeat("cd", 32)})
	require.Equal(t, http.StatusOK, status, body)
	receivable := body["receivable"].(map[string]interface{})
	require.Equal(t, "800", receivable["faceValue"])
	require.Equal(t, hexOf(sellerID), receivable["owner"])

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/receivables/"+receivable["id"].(string)+"/transfer", map[string]string{"to": hexOf(outsider)})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "WrongParty", body["code"])

	status, body = env.call(t, sellerID, http.MethodPost, "/v1/receivables/"+receivable["id"].(string)+"/transfer", map[string]string{"to": hexOf(outsider)})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, hexOf(outsider), body["owner"])

	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/fulfil", map[string]string{"amount": "800"})
	require.Equal(t, http.StatusOK, status, body)
	status, body = env.call(t, buyerID, http.MethodPost, "/v1/escrows/"+id+"/confirm", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "RELEASED", stateOf(body))

	status, body = env.call(t, outsider, http.MethodGet, "/v1/balances/native", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "800", body["balance"])
	status, body = env.call(t, sellerID, http.MethodGet, "/v1/balances/native", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "190", body["balance"])
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.callWithToken(t, "", http.MethodGet, "/v1/quote", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Unauthorized", body["code"])

	status, _ = env.callWithToken(t, token(t, buyerID, []byte("other-secret")), http.MethodGet, "/v1/quote", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.call(t, buyerID, http.MethodPost, "/v1/operator/deposits", map[string]string{
		"identity": hexOf(buyerID), "amount": "1",
	})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = env.call(t, buyerID, http.MethodGet, "/v1/parties/"+hexOf(sellerID)+"/escrows", nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = env.callWithToken(t, "", http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestRateLimitPerCaller(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimitPerSec = 0.001
		cfg.RateBurst = 1
	})

	status, _ := env.call(t, buyerID, http.MethodGet, "/v1/quote", nil)
	require.Equal(t, http.StatusOK, status)
	status, body := env.call(t, buyerID, http.MethodGet, "/v1/quote", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "RateLimited", body["code"])

	// Other callers have their own bucket.
	status, _ = env.call(t, sellerID, http.MethodGet, "/v1/quote", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, buyerID, http.MethodGet, "/v1/quote", nil)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "escrow_api_requests_total")
}

func TestStatusForKinds(t *testing.T) {
	cases := map[string]int{
		"NotFound":          http.StatusNotFound,
		"NotApproved":       http.StatusForbidden,
		"InvalidCollateral": http.StatusBadRequest,
		"DeadlinePassed":    http.StatusConflict,
		"TransferFailed":    http.StatusServiceUnavailable,
		"ModulePaused":      http.StatusServiceUnavailable,
		"Internal":          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, statusFor(kind), kind)
	}
}
