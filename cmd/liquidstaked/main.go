package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liquidstake/config"
	"liquidstake/core/epoch"
	"liquidstake/native/backend"
	"liquidstake/native/pool"
	"liquidstake/native/receipt"
	"liquidstake/native/ticket"
	"liquidstake/native/vault"
	"liquidstake/observability"
	"liquidstake/observability/logging"
	"liquidstake/rpc"
	"liquidstake/storage"
)

const rpcTokenEnv = "LIQUIDSTAKE_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(cfg.ServiceName, cfg.Env)

	token := cfg.RPCToken
	if env := os.Getenv(rpcTokenEnv); env != "" {
		token = env
	}
	if token == "" {
		logger.Warn("no RPC token configured; mutating methods will be rejected")
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := pool.NewStore(db)
	cursor, err := store.EpochCursor()
	if err != nil {
		logger.Error("failed to restore epoch cursor", slog.Any("error", err))
		os.Exit(1)
	}
	clock := epoch.NewClock(cursor, cfg.EpochDelay)
	observability.Pool().SetEpoch(cursor)

	sink := observability.NewEventSink(logger)
	engine, err := buildEngine(cfg, db, store, clock, logger, sink)
	if err != nil {
		logger.Error("failed to assemble pool engine", slog.Any("error", err))
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(engine, clock, store, logger, token, cfg.RPCRateLimit, cfg.RPCRateBurst)
	server.SetEmitter(sink)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("RPC server stopped", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown failed", slog.Any("error", err))
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// buildEngine assembles the engine with every collaborator bound to the same
// database as the pool store, so ledger, tickets, receipt supply, vault
// balance, and operator unbond books restore together after a restart.
func buildEngine(cfg *config.Config, db storage.Database, store *pool.Store, clock *epoch.Clock, logger *slog.Logger, sink *observability.EventSink) (*pool.Engine, error) {
	minStake, err := config.ParseAmount(cfg.BackendMinStake)
	if err != nil {
		return nil, fmt.Errorf("BackendMinStake: %w", err)
	}
	registry := backend.NewRegistry(minStake)
	for _, entry := range cfg.Backends {
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("backend address %q is not a hex address", entry.Address)
		}
		reward := common.HexToAddress(entry.Address)
		if common.IsHexAddress(entry.RewardAddr) {
			reward = common.HexToAddress(entry.RewardAddr)
		}
		op, err := backend.NewStoredOperator(db, common.HexToAddress(entry.Address), clock, entry.UnbondDelay)
		if err != nil {
			return nil, fmt.Errorf("restore backend %s: %w", entry.Address, err)
		}
		if err := registry.Add(op, entry.Weight, reward); err != nil {
			return nil, err
		}
		logger.Info("registered backend", "addr", entry.Address, "weight", entry.Weight)
	}

	moduleAddr := common.Address{}
	if common.IsHexAddress(cfg.ModuleAddress) {
		moduleAddr = common.HexToAddress(cfg.ModuleAddress)
	}

	ticketBook, err := ticket.NewStoredLedger(db)
	if err != nil {
		return nil, fmt.Errorf("restore ticket ledger: %w", err)
	}
	receiptToken, err := receipt.NewStoredToken(db)
	if err != nil {
		return nil, fmt.Errorf("restore receipt token: %w", err)
	}
	poolVault, err := vault.NewStoredVault(db)
	if err != nil {
		return nil, fmt.Errorf("restore vault: %w", err)
	}

	engine := pool.NewEngine(moduleAddr)
	engine.SetState(store)
	engine.SetRegistry(registry)
	engine.SetTicketLedger(ticketBook)
	engine.SetReceiptToken(receiptToken)
	engine.SetVault(poolVault)
	engine.SetEpochSource(clock)
	engine.SetEmitter(sink)

	minDeposit, err := config.ParseAmount(cfg.MinDeposit)
	if err != nil {
		return nil, fmt.Errorf("MinDeposit: %w", err)
	}
	maxDeposit, err := config.ParseAmount(cfg.MaxDeposit)
	if err != nil {
		return nil, fmt.Errorf("MaxDeposit: %w", err)
	}
	engine.SetDepositThresholds(minDeposit, maxDeposit)

	lowerBound, err := config.ParseAmount(cfg.DelegationLowerBound)
	if err != nil {
		return nil, fmt.Errorf("DelegationLowerBound: %w", err)
	}
	engine.SetDelegationLowerBound(lowerBound)
	engine.SetFeeSplit(pool.FeeSplit{TreasuryBps: cfg.TreasuryFeeBps, OperatorBps: cfg.OperatorFeeBps})
	return engine, nil
}
