// Standalone retry runner: drains every pending customer to a
// confirmation or an escalation, then exits. Deployed where the API
// process is not expected to stay up, or to work off a backlog.
package main

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

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
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.Workers).
		Str("inventory", cfg.InventoryBase).
		Msg("retry scheduler starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

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

	if err := sched.Resume(ctx); err != nil {
		log.Fatal().Err(err).Msg("retry resume failed")
	}

	sched.Wait()
	log.Info().Msg("retry backlog drained")
}
