// Package main runs the sniper daemon:
// - Feed: candidates appended by the discovery process
// - Trader: risk gate → entry execution → portfolio
// - Monitor: price tracking and exits for every open position
// - Alerts and operator API (health, portfolio, manual exits, metrics)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/alert"
	"solana-sniper/internal/api"
	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/feed"
	"solana-sniper/internal/monitor"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/orchestrator"
	"solana-sniper/internal/portfolio"
	"solana-sniper/internal/risk"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/file"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/storage/sqlite"
	"solana-sniper/internal/venue"
)

// stores holds the persistence backends selected by configuration.
type stores struct {
	positions storage.PositionStore
	progress  storage.FeedProgressStore
	ticks     storage.PriceTickStore // nil unless ClickHouse is configured
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("SNIPER_CONFIG"), "Path to YAML config (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage regardless of config")
	dryRun := flag.Bool("dry-run", false, "Validate config and exit")

	flag.Parse()

	logger := log.New(os.Stdout, "[sniper] ", log.LstdFlags|log.Lshortfile)

	cfg, riskCfg, err := loadConfig(*configPath, *useMemory)
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if *dryRun {
		logger.Printf("Configuration OK: entry %s SOL, ceiling %s SOL, max %d open",
			riskCfg.EntrySize, riskCfg.CapitalCeiling, riskCfg.MaxOpenPositions)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(cfg.Trader.ShutdownGrace + 10*time.Second):
			logger.Printf("Shutdown timeout exceeded, forcing exit")
			os.Exit(1)
		}
	}()

	if err := run(ctx, cfg, riskCfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Sniper stopped: %v", err)
	}
	logger.Printf("Sniper stopped")
}

// loadConfig reads and validates the configuration and derives the risk
// settings the trader runs with.
func loadConfig(path string, useMemory bool) (*config.Config, domain.RiskConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, domain.RiskConfig{}, err
	}
	if useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}
	riskCfg, err := cfg.RiskConfig()
	if err != nil {
		return nil, domain.RiskConfig{}, fmt.Errorf("risk: %w", err)
	}
	return &cfg, riskCfg, nil
}

func run(ctx context.Context, cfg *config.Config, riskCfg domain.RiskConfig, logger *log.Logger) error {
	metrics := observability.DefaultMetrics

	// Signer and RPC
	signer, err := solana.LoadKeypair(cfg.Keypair)
	if err != nil {
		return fmt.Errorf("load keypair: %w", err)
	}
	logger.Printf("Trading wallet: %s", signer.PublicKey())

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithObserver(metrics.ObserveRPC),
		solana.WithTimeout(30*time.Second),
	)

	// Venues
	registry, err := buildVenues(cfg, rpc, signer, logger)
	if err != nil {
		return err
	}
	logger.Printf("Venues: %v", registry.Venues())

	// Storage
	st, err := openStores(ctx, cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.close()

	// Portfolio
	book := portfolio.New(portfolio.Options{
		CapitalCeiling:   riskCfg.CapitalCeiling,
		MaxOpenPositions: riskCfg.MaxOpenPositions,
		Store:            st.positions,
		Logger:           log.New(os.Stdout, "[portfolio] ", log.LstdFlags),
	})
	restored, err := book.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore portfolio: %w", err)
	}
	if restored > 0 {
		logger.Printf("Restored %d active positions from the journal", restored)
	}

	// Execution
	engine := execution.New(execution.Options{
		Adapters:           registry,
		MaxInFlight:        cfg.Execution.MaxInFlight,
		RPS:                cfg.Execution.RPS,
		MaxRetries:         cfg.Execution.MaxRetries,
		BaseBackoff:        cfg.Execution.BaseBackoff,
		MaxBackoff:         cfg.Execution.MaxBackoff,
		ConfirmTimeout:     cfg.Execution.ConfirmTimeout,
		RequeryTimeout:     cfg.Execution.RequeryTimeout,
		MaxSigningFailures: cfg.Execution.MaxSigningFailures,
		Observer:           metrics.ObserveExecution,
		Logger:             log.New(os.Stdout, "[execution] ", log.LstdFlags),
	})

	// Alerts
	emitter, err := buildEmitter(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := emitter.Close(); err != nil {
			logger.Printf("WARN: close alert sinks: %v", err)
		}
	}()

	// Price sources
	var prices monitor.PriceSource = monitor.NewPollSource(registry, cfg.Monitor.PollInterval, 0, logger)
	if cfg.Monitor.Stream {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = log.New(os.Stdout, "[ws] ", log.LstdFlags)
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
		if err != nil {
			logger.Printf("WARN: websocket unavailable, polling prices only: %v", err)
		} else {
			defer ws.Close()
			prices = monitor.NewStreamSource(ws, registry, prices, logger)
		}
	}

	var recorder *monitor.TickRecorder
	if cfg.Monitor.RecordTicks && st.ticks != nil {
		recorder = monitor.NewTickRecorder(st.ticks, 0, 0, logger)
	}

	mon := monitor.New(monitor.Options{
		Portfolio:      book,
		Executor:       engine,
		Prices:         prices,
		Risk:           riskCfg,
		TickInterval:   cfg.Monitor.TickInterval,
		ExitTimeout:    cfg.Monitor.ExitTimeout,
		ExitRetryDelay: cfg.Monitor.ExitRetryDelay,
		Recorder:       recorder,
		Events:         emitter,
		Logger:         log.New(os.Stdout, "[monitor] ", log.LstdFlags),
	})

	// Feed and risk gate
	reader := feed.New(feed.Options{
		Path:         cfg.Feed.Path,
		Progress:     st.progress,
		PollInterval: cfg.Feed.PollInterval,
		RetryDelay:   cfg.Feed.RetryDelay,
		Logger:       log.New(os.Stdout, "[feed] ", log.LstdFlags),
	})

	var sizer risk.Sizer
	if cfg.Risk.SizeFraction > 0 {
		sizer = risk.ProportionalSizer{Fraction: decimal.NewFromFloat(cfg.Risk.SizeFraction)}
	}

	orch := orchestrator.New(orchestrator.Options{
		Feed:      reader,
		Gate:      risk.NewGate(riskCfg, sizer),
		Portfolio: book,
		Executor:  engine,
		Monitor:   mon,
		Venues:    registry,
		Events:    emitter,
		OnDecision: func(_ domain.CandidateRecord, d risk.Decision) {
			metrics.RecordCandidate(time.Now())
			if d.Accept {
				metrics.RecordDecision("accepted")
				return
			}
			metrics.RecordDecision(string(d.Reason))
		},
		MaxConcurrentCandidates: cfg.Trader.MaxConcurrentCandidates,
		ShutdownGrace:           cfg.Trader.ShutdownGrace,
		Logger:                  logger,
	})

	// Alerts outlive the trading loop so shutdown exits are still reported.
	alertCtx, stopAlerts := context.WithCancel(context.Background())
	alertsDone := make(chan struct{})
	go func() {
		defer close(alertsDone)
		emitter.Run(alertCtx)
	}()
	defer func() {
		stopAlerts()
		<-alertsDone
	}()

	g, gctx := errgroup.WithContext(ctx)

	if recorder != nil {
		g.Go(func() error {
			recorder.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return metrics.Collect(gctx, 0, observability.Stats{
			Portfolio:   book.Snapshot,
			FeedCorrupt: reader.Corrupt,
			Tracked:     func() int { return len(mon.Tracked()) },
			Dropped:     emitter.Dropped,
			Signing:     engine.SigningAvailable,
		})
	})
	if cfg.API.Enabled {
		handler := api.NewHandler(book, mon, engine.SigningAvailable, log.New(os.Stdout, "[api] ", log.LstdFlags))
		router := api.SetupRoutes(handler, observability.Handler())
		g.Go(func() error {
			logger.Printf("API listening on %s", cfg.API.Addr)
			return api.Serve(gctx, cfg.API.Addr, router)
		})
	}
	g.Go(func() error {
		orch.Resume(gctx)
		return orch.Run(gctx)
	})

	return g.Wait()
}

// buildVenues creates the three venue adapters over one transaction submitter.
func buildVenues(cfg *config.Config, rpc solana.RPCClient, signer *solana.Keypair, logger *log.Logger) (*venue.Registry, error) {
	submitter := venue.NewSubmitter(venue.SubmitterOptions{
		RPC:              rpc,
		Signer:           signer,
		ComputeUnitLimit: cfg.Execution.ComputeUnitLimit,
		ComputeUnitPrice: cfg.Execution.ComputeUnitPrice,
		SkipPreflight:    cfg.Execution.SkipPreflight,
		Logger:           logger,
	})

	curve, err := venue.NewBondingCurve(venue.BondingCurveOptions{
		RPC:          rpc,
		Submitter:    submitter,
		FeeRecipient: cfg.Venues.PumpFeeRecipient,
	})
	if err != nil {
		return nil, fmt.Errorf("bonding curve venue: %w", err)
	}
	amm, err := venue.NewAMM(venue.AMMOptions{
		RPC:          rpc,
		Submitter:    submitter,
		FeeBps:       cfg.Venues.AMMFeeBps,
		FeeRecipient: cfg.Venues.AMMFeeRecipient,
	})
	if err != nil {
		return nil, fmt.Errorf("amm venue: %w", err)
	}
	aggregator := venue.NewAggregator(venue.AggregatorOptions{
		BaseURL:     cfg.Venues.AggregatorURL,
		Submitter:   submitter,
		PriorityFee: cfg.Venues.PriorityFee,
	})

	return venue.NewRegistry(curve, amm, aggregator), nil
}

// openStores opens the configured journal and feed progress backends and,
// when a ClickHouse DSN is set, the price tick store.
func openStores(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *log.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			st.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.positions = observability.InstrumentPositionStore(pgstore.NewPositionStore(pool), "postgres", metrics)
		st.progress = pgstore.NewFeedProgressStore(pool)
		logger.Printf("Journal: postgres")

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { db.Close() })
		st.positions = observability.InstrumentPositionStore(db, "sqlite", metrics)
		logger.Printf("Journal: sqlite %s", cfg.Storage.SQLitePath)

	default:
		st.positions = memory.NewPositionStore()
		st.progress = memory.NewFeedProgressStore()
		logger.Printf("Journal: in-memory (positions are lost on restart)")
	}

	if st.progress == nil {
		path := cfg.Feed.ProgressPath
		if path == "" {
			path = cfg.Feed.Path + ".progress.json"
		}
		progress, err := file.NewFeedProgressStore(path)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("feed progress: %w", err)
		}
		st.progress = progress
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		st.closers = append(st.closers, func() { conn.Close() })
		st.ticks = chstore.NewPriceTickStore(conn)
		logger.Printf("Price ticks: clickhouse")
	}

	return st, nil
}

// buildEmitter creates the alert emitter with every configured sink.
func buildEmitter(cfg *config.Config, metrics *observability.Metrics, logger *log.Logger) (*alert.Emitter, error) {
	sinks := []alert.Sink{
		alert.NewLogSink(log.New(os.Stdout, "[alert] ", log.LstdFlags)),
		metrics,
	}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, alert.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if cfg.Kafka.Enabled {
		sinks = append(sinks, alert.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	if cfg.Redis.Enabled {
		rs := alert.NewRedisSink(alert.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			TTL:      cfg.Redis.TTL,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("redis alerts: %w", err)
		}
		sinks = append(sinks, rs)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Printf("Alert sinks: %v", names)

	return alert.NewEmitter(alert.EmitterOptions{Logger: logger}, sinks...), nil
}
