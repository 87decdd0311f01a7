package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/directory"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/observability"
	"github.com/segyhp/loan-ledger/internal/repository"
	"github.com/segyhp/loan-ledger/internal/service"

	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds a single overdue sweep.
const sweepTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format).With(slog.String("process", "scheduler"))
	slog.SetDefault(logger)

	if cfg.Database.Driver != "postgres" {
		logger.Error("scheduler needs a shared postgres store", slog.String("driver", cfg.Database.Driver))
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	store := repository.NewPostgresStore(db)
	defer store.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		publisher = events.NewRedisPublisher(client, cfg.Redis.Channel, cfg.Redis.KeyPrefix)
	}

	loanService := service.NewLoanService(store, publisher, directory.NewStatic(cfg.OfficerNames()), cfg, logger)

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if err := setupCronJobs(c, cfg, loanService, logger); err != nil {
		logger.Error("failed to schedule jobs", slog.String("error", err.Error()))
		os.Exit(1)
	}

	c.Start()
	logger.Info("scheduler started",
		slog.String("overdue_cron", cfg.Scheduler.OverdueCron),
		slog.String("timezone", cfg.Scheduler.Timezone),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

type overdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, sweeper overdueSweeper, logger *slog.Logger) error {
	_, err := c.AddFunc(cfg.Scheduler.OverdueCron, func() {
		runOverdueSweep(sweeper, logger)
	})
	return err
}

func runOverdueSweep(sweeper overdueSweeper, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	marked, err := sweeper.SweepOverdue(ctx)
	if err != nil {
		logger.Error("overdue job completed with errors",
			slog.Int("marked", marked),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("overdue job completed",
		slog.Int("marked", marked),
		slog.Duration("duration", time.Since(start)),
	)
}
