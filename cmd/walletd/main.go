// Command walletd wires the DCB core (pkg/dcb + pkg/dcb/postgres) to the
// wallet + course illustrative domain and the Event Processor Runtime,
// following the teacher's internal/web-app/main.go bootstrap shape:
// env-config, migrate, retrying pgxpool connect, then serve.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dcbstore/internal/clock"
	"dcbstore/internal/config"
	"dcbstore/internal/metrics"
	"dcbstore/internal/processor"
	"dcbstore/internal/sink"
	"dcbstore/pkg/dcb"
	"dcbstore/pkg/dcb/postgres"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.DSN()); err != nil {
		log.Fatalf("walletd: migrate: %v", err)
	}

	pool := connectPool(ctx, cfg)
	defer pool.Close()

	store, err := postgres.OpenWithConfig(ctx, pool, cfg.Store)
	if err != nil {
		log.Fatalf("walletd: open store: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	sinkMetrics := metrics.NewPrometheus(registry)

	executor, err := postgres.NewCommandExecutor(store, cfg.PersistCommands, sinkMetrics)
	if err != nil {
		log.Fatalf("walletd: command executor: %v", err)
	}

	runtimes := startProcessors(ctx, pool, sinkMetrics, cfg)

	mux := http.NewServeMux()
	mux.Handle("/", newRouter(runtimes))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("walletd: listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("walletd: serve: %v", err)
		}
	}()

	useDomain(ctx, executor)

	<-ctx.Done()
	log.Println("walletd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// connectPool mirrors the teacher's own retry-loop connect idiom in
// internal/web-app/main.go, generalized to read pool sizing from
// config instead of hardcoded constants.
func connectPool(ctx context.Context, cfg config.Config) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		log.Fatalf("walletd: parse db config: %v", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConnLifetime = 10 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	const maxRetries = 30
	const retryDelay = 2 * time.Second

	var pool *pgxpool.Pool
	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			return pool
		}
		log.Printf("walletd: db connect attempt %d/%d failed: %v", i+1, maxRetries, err)
		time.Sleep(retryDelay)
	}
	log.Fatalf("walletd: db connect failed after %d attempts: %v", maxRetries, err)
	return nil
}

// startProcessors wires one Runtime per downstream sink: a Kafka
// publisher republishing every committed event, and a Postgres view
// updater materializing wallet balances and course rosters. Each runs
// its own poll loop under PER_PROCESSOR leader election so either can
// run on any instance independently.
func startProcessors(ctx context.Context, pool *pgxpool.Pool, sinkMetrics metrics.Sink, cfg config.Config) map[string]*processor.Runtime {
	progress := processor.NewProgressStore(pool)
	fetcher := processor.NewFetcher(pool)
	clk := clock.Real()

	runtimes := make(map[string]*processor.Runtime)

	if len(cfg.KafkaBrokers) > 0 {
		publisherCfg := processor.DefaultConfig("outbox-kafka", cfg.InstanceID)
		publisherCfg.Strategy = processor.StrategyPerProcessor
		publisherCfg.MaxErrors = cfg.ProcessorMaxErrors
		publisher := sink.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		elector := processor.NewLeaderElector(pool, publisherCfg.Strategy, sinkMetrics)
		rt := processor.NewRuntime(publisherCfg, progress, elector, fetcher, publisher, clk, sinkMetrics)
		runtimes[publisherCfg.ProcessorID] = rt
		go rt.Run(ctx, cfg.ProcessorPollInterval)
	}

	viewCfg := processor.DefaultConfig("wallet-course-view", cfg.InstanceID)
	viewCfg.Strategy = processor.StrategyPerProcessor
	viewCfg.MaxErrors = cfg.ProcessorMaxErrors
	viewUpdater := buildViewUpdater(pool)
	elector := processor.NewLeaderElector(pool, viewCfg.Strategy, sinkMetrics)
	rt := processor.NewRuntime(viewCfg, progress, elector, fetcher, viewUpdater, clk, sinkMetrics)
	runtimes[viewCfg.ProcessorID] = rt
	go rt.Run(ctx, cfg.ProcessorPollInterval)

	return runtimes
}

// useDomain exercises the wallet + course domain once at startup so a
// fresh instance has something in the log to serve /processors against
// - the same role the teacher's internal/examples mains play, run
// in-process instead of as a standalone example binary.
func useDomain(ctx context.Context, executor dcb.CommandExecutor) {
	_, err := executor.Execute(ctx, dcb.NewCommand(CommandDefineCourse, dcb.ToJSON(DefineCourseCommand{
		CourseID: "course101", Title: "Event Sourcing 101", Capacity: 2,
	}), nil), dcb.CommandHandlerFunc(CourseHandler))
	if err != nil && !dcb.IsDCBViolation(err) {
		log.Printf("walletd: seed DefineCourse: %v", err)
	}

	_, err = executor.Execute(ctx, dcb.NewCommand(CommandOpenWallet, dcb.ToJSON(OpenWalletCommand{
		WalletID: "wallet1", Owner: "alice", InitialBalance: 100,
	}), nil), dcb.CommandHandlerFunc(WalletHandler))
	if err != nil && !dcb.IsDCBViolation(err) {
		log.Printf("walletd: seed OpenWallet: %v", err)
	}
}
