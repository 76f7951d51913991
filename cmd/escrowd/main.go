package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tradeescrow/config"
	"tradeescrow/core/events"
	escrowstate "tradeescrow/core/state"
	"tradeescrow/native/bank"
	nativecommon "tradeescrow/native/common"
	"tradeescrow/native/escrow"
	"tradeescrow/native/kyc"
	"tradeescrow/native/reputation"
	"tradeescrow/observability/logging"
	"tradeescrow/observability/metrics"
	telemetry "tradeescrow/observability/otel"
	"tradeescrow/rpc"
	"tradeescrow/storage"
	"tradeescrow/storage/eventlog"
)

const serviceName = "escrowd"

func main() {
	configFile := flag.String("config", "./escrowd.toml", "Path to the configuration file (.toml, .yaml or .yml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Fatalf("escrowd: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Configure(logging.Options{
		Service:    serviceName,
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Logging.Env,
		DeploymentID: cfg.Escrow.DeploymentID,
		Endpoint:     cfg.Telemetry.Endpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Headers:      telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:      cfg.Telemetry.Metrics,
		Traces:       cfg.Telemetry.Traces,
		SampleRatio:  cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	app, err := assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           app.handler,
		ReadHeaderTimeout: seconds(cfg.Server.ReadHeaderTimeoutSecs),
		ReadTimeout:       seconds(cfg.Server.ReadTimeoutSecs),
		WriteTimeout:      seconds(cfg.Server.WriteTimeoutSecs),
		IdleTimeout:       seconds(cfg.Server.IdleTimeoutSecs),
	}
	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("escrow API listening", "address", listener.Addr().String(), "deployment", cfg.Escrow.DeploymentID)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.Server.ShutdownTimeoutSecs))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	logger.Info("escrow API stopped")
	return nil
}

// app holds the assembled service and the resources it must release.
type app struct {
	engine   *escrow.Engine
	registry *kyc.Registry
	vault    *bank.Vault
	handler  http.Handler
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Default().Warn("close failed", "error", err)
		}
	}
}

// assemble opens storage and wires the ledgers, engine and API described by
// cfg.
func assemble(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	if cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return fail(fmt.Errorf("create data dir: %w", err))
		}
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	manager := escrowstate.NewManager(db)
	if err := escrowstate.EnsureStateVersion(manager, cfg.Storage.AllowMigrate); err != nil {
		return fail(err)
	}

	eventLog, err := openEventLog(cfg.Storage.EventLogPath)
	if err != nil {
		return fail(err)
	}
	eventLog.SetLogger(logger)
	a.closers = append(a.closers, eventLog.Close)

	engineMetrics := metrics.Escrow()
	emitter := events.Fanout{eventLog, engineMetrics}

	a.vault = bank.NewVault(manager)
	ledger := reputation.NewLedger(manager)
	a.registry = kyc.NewRegistry(manager)
	a.registry.SetEmitter(emitter)

	approved, err := cfg.ApprovedIdentities()
	if err != nil {
		return fail(err)
	}
	for _, identity := range approved {
		if a.registry.IsApproved(identity) {
			continue
		}
		if err := a.registry.Approve(identity, "config"); err != nil {
			return fail(fmt.Errorf("seed kyc: %w", err))
		}
	}

	params, err := cfg.EscrowParams()
	if err != nil {
		return fail(err)
	}
	a.engine, err = escrow.NewEngine(params)
	if err != nil {
		return fail(err)
	}
	pauses := nativecommon.NewPauses()
	pauses.Set("escrow", cfg.Escrow.Paused)
	a.engine.SetState(manager)
	a.engine.SetAssets(a.vault)
	a.engine.SetStats(ledger)
	a.engine.SetAccessList(a.registry)
	a.engine.SetPauses(pauses)
	a.engine.SetEmitter(emitter)
	a.engine.SetObserver(engineMetrics)
	a.engine.SetLogger(logger)

	operators, err := cfg.OperatorIdentities()
	if err != nil {
		return fail(err)
	}
	secret := cfg.JWTSecret()
	if len(secret) == 0 {
		return fail(errors.New("auth: JWT secret not configured"))
	}
	server := rpc.NewServer(rpc.Deps{
		Engine:    a.engine,
		Bank:      a.vault,
		Approvals: a.registry,
		Index:     manager,
		Events:    eventLog,
		Logger:    logger,
	}, rpc.Config{
		JWTSecret:       secret,
		Issuer:          cfg.Auth.Issuer,
		Audience:        cfg.Auth.Audience,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateBurst:       cfg.Server.RateBurst,
		Operators:       operators,
	})
	a.handler = server.Handler()
	return a, nil
}

func openEventLog(path string) (*eventlog.SQLiteLog, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create event log dir: %w", err)
		}
	}
	eventLog, err := eventlog.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return eventLog, nil
}

func seconds(v uint32) time.Duration {
	return time.Duration(v) * time.Second
}
