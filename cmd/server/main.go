package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/directory"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/handler"
	"github.com/segyhp/loan-ledger/internal/observability"
	"github.com/segyhp/loan-ledger/internal/repository"
	"github.com/segyhp/loan-ledger/internal/service"
	"github.com/segyhp/loan-ledger/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Initialize storage
	store, db, err := initStore(cfg)
	if err != nil {
		logger.Error("failed to initialize store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	var publisher events.Publisher = events.NopPublisher{}
	if redisClient != nil {
		defer redisClient.Close()
		publisher = events.NewRedisPublisher(redisClient, cfg.Redis.Channel, cfg.Redis.KeyPrefix)
	}

	// Initialize service
	officers := directory.NewStatic(cfg.OfficerNames())
	loanService := service.NewLoanService(store, publisher, officers, cfg, logger)
	loanHandler := handler.NewLoanHandler(loanService, logger)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.Health.Timeout)

	// Setup routes
	router := setupRoutes(loanHandler, healthHandler, logger)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting",
			slog.String("addr", server.Addr),
			slog.String("env", cfg.Server.Env),
			slog.String("store", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
		return
	}

	logger.Info("server exited")
}

// initStore returns the configured store. db is nil for the memory driver.
func initStore(cfg *config.Config) (repository.Store, *sqlx.DB, error) {
	if cfg.Database.Driver == "memory" {
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := initDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return repository.NewPostgresStore(db), db, nil
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(loanHandler *handler.LoanHandler, healthHandler *handler.HealthHandler, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = response.LoggingMiddleware(logger)(http.HandlerFunc(response.RouteNotFound))
	router.Use(response.LoggingMiddleware(logger))
	router.Use(response.CORSMiddleware)

	healthHandler.RegisterRoutes(router)
	loanHandler.RegisterRoutes(router)

	return router
}
