package rpc

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tradeescrow/native/escrow"
	"tradeescrow/native/fees"
	"tradeescrow/native/kyc"
	"tradeescrow/observability/metrics"
	"tradeescrow/storage/eventlog"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Engine is the escrow surface exposed over HTTP.
type Engine interface {
	Initiate(caller [20]byte, p escrow.InitiateParams) (*escrow.Escrow, error)
	Fund(id [32]byte, payer [20]byte, value *big.Int) error
	CommitDocuments(id [32]byte, seller [20]byte, hashes escrow.DocumentHashes) error
	ConfirmDelivery(id [32]byte, buyer [20]byte) error
	RaiseDispute(id [32]byte, actor [20]byte) error
	ResolveDispute(id [32]byte, arbiter [20]byte, ruling escrow.Ruling) error
	EscalateToProtocol(id [32]byte, actor [20]byte) error
	ResolveEscalation(id [32]byte, arbiter [20]byte, ruling escrow.Ruling) error
	ClaimTimeout(id [32]byte, actor [20]byte) error
	FulfillCommitment(id [32]byte, buyer [20]byte, value *big.Int) error
	ClaimDefaultedCommitment(id [32]byte, seller [20]byte) error
	TransferReceivable(receivableID [32]byte, owner, to [20]byte) error
	View(id [32]byte) (*escrow.View, error)
	AllowedActions(id [32]byte, caller [20]byte) ([]escrow.Action, error)
	Quote(identity [20]byte) (fees.Quote, error)
}

// Bank credits and reports custody balances.
type Bank interface {
	Deposit(owner [20]byte, asset [20]byte, amount *big.Int) error
	Balance(owner [20]byte, asset [20]byte) (*big.Int, error)
	Locked(owner [20]byte, asset [20]byte) (*big.Int, error)
}

// Approvals manages the KYC allow-list.
type Approvals interface {
	Approve(identity [20]byte, reference string) error
	Revoke(identity [20]byte, reference string) error
	Approval(identity [20]byte) (*kyc.Approval, bool, error)
}

// PartyIndex lists the escrows an identity takes part in.
type PartyIndex interface {
	EscrowsByParty(identity [20]byte) ([][32]byte, error)
}

// EventLog serves the recorded history of an escrow.
type EventLog interface {
	List(ctx context.Context, escrowID [32]byte) ([]eventlog.Record, error)
}

// Config controls authentication and throttling.
type Config struct {
	JWTSecret       []byte
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
	RateLimitPerSec float64
	RateBurst       int
	Operators       [][20]byte
}

// Deps are the collaborators behind the API.
type Deps struct {
	Engine    Engine
	Bank      Bank
	Approvals Approvals
	Index     PartyIndex
	Events    EventLog
	Logger    *slog.Logger
}

// Server serves the escrow HTTP API.
type Server struct {
	deps      Deps
	logger    *slog.Logger
	auth      *authenticator
	limiter   *rateLimiter
	metrics   *metrics.APIMetrics
	operators map[[20]byte]struct{}
}

// NewServer wires the API over deps.
func NewServer(deps Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	operators := make(map[[20]byte]struct{}, len(cfg.Operators))
	for _, op := range cfg.Operators {
		operators[op] = struct{}{}
	}
	m := metrics.API()
	return &Server{
		deps:      deps,
		logger:    logger,
		auth:      newAuthenticator(cfg, logger),
		limiter:   newRateLimiter(cfg.RateLimitPerSec, cfg.RateBurst, m),
		metrics:   m,
		operators: operators,
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Use(s.auth.middleware)
		v.Use(s.limiter.middleware)

		v.Get("/quote", s.handleQuote)
		v.Get("/balances/{asset}", s.handleBalance)
		v.Get("/parties/{identity}/escrows", s.handlePartyEscrows)

		v.Post("/escrows", s.handleInitiate)
		v.Route("/escrows/{id}", func(e chi.Router) {
			e.Use(traceEscrow)
			e.Get("/", s.handleView)
			e.Get("/actions", s.handleActions)
			e.Get("/events", s.handleEvents)
			e.Get("/documents/{index}/proof", s.handleDocumentProof)
			e.Post("/fund", s.handleFund)
			e.Post("/documents", s.handleCommitDocuments)
			e.Post("/confirm", s.handleConfirm)
			e.Post("/dispute", s.handleRaiseDispute)
			e.Post("/resolve", s.handleResolveDispute)
			e.Post("/escalate", s.handleEscalate)
			e.Post("/escalation/resolve", s.handleResolveEscalation)
			e.Post("/timeout", s.handleClaimTimeout)
			e.Post("/fulfil", s.handleFulfil)
			e.Post("/default", s.handleClaimDefault)
		})
		v.Post("/receivables/{id}/transfer", s.handleTransferReceivable)

		v.Route("/operator", func(o chi.Router) {
			o.Use(s.requireOperator)
			o.Post("/deposits", s.handleDeposit)
			o.Post("/kyc", s.handleKYC)
			o.Get("/kyc/{identity}", s.handleKYCStatus)
		})
	})

	return otelhttp.NewHandler(r, "escrow-api")
}
