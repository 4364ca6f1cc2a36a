package main

import (
	"context"
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "costamar_booking/internal/adapters/http_server"
	"costamar_booking/internal/adapters/inventory"
	"costamar_booking/internal/adapters/ledgersync"
	"costamar_booking/internal/adapters/notify"
	"costamar_booking/internal/adapters/observability"
	redisad "costamar_booking/internal/adapters/redis"
	"costamar_booking/internal/app"
	"costamar_booking/internal/shared"
	mysqlrepo "costamar_booking/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	ledger := mysqlrepo.NewLedger(db)
	store := mysqlrepo.NewRetryStore(db)
	guard := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.Cooldown)

	inv, err := inventory.New(cfg.InventoryBase, cfg.InventoryKey, cfg.InventoryRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize inventory client")
	}
	syncer, err := ledgersync.New(cfg.SyncBase, cfg.SyncKey, cfg.SyncRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ledger-sync client")
	}

	notifier := notify.New(cfg.AMQPURL)
	defer notifier.Close()

	orch := app.NewOrchestrator(ledger, guard, inv, syncer, app.OrchestratorConfig{
		CommitRetryDelay: cfg.CommitDelay,
	})
	sched := app.NewScheduler(orch, store, notifier, app.SchedulerConfig{
		MaxConcurrent: int64(cfg.Workers),
		OperatorKey:   cfg.OperatorKey,
	})

	// pick pending customers back up after a restart
	if err := sched.Resume(context.Background()); err != nil {
		log.Error().Err(err).Msg("retry resume failed")
	}

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Booker: orch, Sched: sched, Store: store})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
