// Command autobot is the engine's CLI entry point: load configuration from
// the environment, wire every component, run until an interrupt or
// terminate signal, then shut down gracefully. Adapted from the teacher's
// top-level main.go wiring order (config load -> logging -> event bus ->
// components -> signal wait -> graceful shutdown), trimmed from its
// multi-tenant SaaS surface (web server, auth, billing, AI) down to the
// single-process autonomous engine this module runs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autobot/engine/internal/binance"
	"github.com/autobot/engine/internal/circuit"
	"github.com/autobot/engine/internal/config"
	"github.com/autobot/engine/internal/events"
	"github.com/autobot/engine/internal/exit"
	"github.com/autobot/engine/internal/features"
	"github.com/autobot/engine/internal/ingest"
	"github.com/autobot/engine/internal/logging"
	"github.com/autobot/engine/internal/metrics"
	"github.com/autobot/engine/internal/notifier"
	"github.com/autobot/engine/internal/orchestrator"
	"github.com/autobot/engine/internal/orders"
	"github.com/autobot/engine/internal/ratelimit"
	"github.com/autobot/engine/internal/regime"
	"github.com/autobot/engine/internal/risk"
	"github.com/autobot/engine/internal/rules"
	"github.com/autobot/engine/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "autobot: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     "stdout",
		JSONFormat: cfg.Logging.Format == "json",
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("autobot starting", "environment", string(cfg.Environment), "symbols", cfg.Trading.Symbols)

	reg := metrics.New()
	go serveMetrics(reg)

	limiter := ratelimit.New(2400, 1200)
	client := binance.NewFuturesClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet, limiter)
	cache := binance.NewMarketDataCache(reg)
	cachedClient := binance.NewCachedFuturesClient(client, cache)

	bus := events.NewBus()
	breaker := circuit.New()

	notify := notifier.NewManager()
	if cfg.Notifier.Token != "" {
		notify.Register(notifier.NewWebhookNotifier("telegram", cfg.Notifier.Token))
	}

	store := state.New(state.Config{
		Host:     cfg.StateStore.Host,
		Port:     cfg.StateStore.Port,
		Password: cfg.StateStore.Password,
		DB:       cfg.StateStore.DB,
		PoolSize: cfg.StateStore.PoolSize,
		TTL:      cfg.StateStore.TTL,
	})

	ingestCfg := ingest.DefaultConfig(streamBaseURL(cfg.Exchange.Testnet), cfg.Trading.Timeframe)
	ingestMgr := ingest.New(ingestCfg, cfg.Trading.Symbols, reg)

	featureEngine := features.New()
	regimeDetector := regime.New(regime.DefaultParams())
	ruleEngine := rules.New(cfg.Trading.ActivationThreshold)
	vetoChain := risk.New(risk.Limits{
		MinADX:                    cfg.Trading.MinADX,
		MaxPositionSizeUSDT:       cfg.Trading.MaxPositionSizeUSDT,
		MaxPositions:              cfg.Trading.MaxPositions,
		MaxCorrelationExposurePct: cfg.Trading.MaxCorrelationExposurePct,
		MaxDrawdownPct:            cfg.Trading.MaxDrawdownPct,
		DailyLossLimitPct:         cfg.Trading.DailyLossLimitPct,
	})
	orderManager := orders.New(cachedClient, cfg.Trading.DryRun)
	exitManager := exit.New(exit.DefaultParams())

	orch := orchestrator.New(orchestrator.Deps{
		Config:   cfg.Trading,
		Client:   cachedClient,
		Ingest:   ingestMgr,
		Features: featureEngine,
		Regime:   regimeDetector,
		Rules:    ruleEngine,
		Vetoes:   vetoChain,
		Orders:   orderManager,
		Exits:    exitManager,
		Store:    store,
		Breaker:  breaker,
		Notify:   notify,
		Bus:      bus,
		Metrics:  reg,
	})

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := orch.Start(ctx); err != nil {
		logger.Error("autobot exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("autobot stopped cleanly")
}

// streamBaseURL returns the combined-stream WebSocket host for the
// configured environment. Binance Futures serves market data from a
// separate host family (fstream) than the signed REST API (fapi).
func streamBaseURL(testnet bool) string {
	if testnet {
		return "wss://stream.binancefuture.com"
	}
	return "wss://fstream.binance.com"
}

// serveMetrics exposes the Prometheus registry on METRICS_ADDR (default
// :9090). Errors are logged, not fatal: metrics are an operational aid,
// never a trading-path dependency.
func serveMetrics(reg *metrics.Registry) {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.WithComponent("metrics").WithError(err).Warn("metrics server stopped")
	}
}
