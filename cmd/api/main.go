package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"

	"github.com/hostmaster-io/hostmaster/internal/cache"
	"github.com/hostmaster-io/hostmaster/internal/config"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/pkg/metrics"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/repository/postgres"
	"github.com/hostmaster-io/hostmaster/internal/services"
	"github.com/hostmaster-io/hostmaster/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	db, err := postgres.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	v, err := vault.New(cfg.Encryption.MasterKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	accounts := postgres.NewAccountRepository(db, cfg.Database.Driver)
	resources := postgres.NewResourceRepository(db, cfg.Database.Driver)
	recommendations := postgres.NewRecommendationRepository(db, cfg.Database.Driver)
	alerts := postgres.NewAlertRepository(db, cfg.Database.Driver)
	jobs := postgres.NewScanJobRepository(db, cfg.Database.Driver)
	costHistory := postgres.NewCostRepository(db, cfg.Database.Driver)

	store := queue.NewRedisStore(rdb)
	scanQueue := queue.New(services.ScanQueueName, store, queue.Options{
		Attempts:      cfg.Queue.ScanAttempts,
		BackoffKind:   queue.BackoffExponential,
		BackoffDelay:  cfg.Queue.ScanBackoffDelay,
		KeepCompleted: cfg.Queue.ScanKeepCompleted,
		PollInterval:  cfg.Queue.PollInterval,
	}, log)
	alertQueue := queue.New(services.AlertQueueName, store, queue.Options{
		Attempts:     cfg.Queue.AlertAttempts,
		BackoffKind:  queue.BackoffLinear,
		BackoffDelay: cfg.Queue.AlertBackoffDelay,
		PollInterval: cfg.Queue.PollInterval,
	}, log)

	costs := services.NewCostService(resources, costHistory, cache.New(rdb), log)
	scans := services.NewScanService(accounts, jobs, scanQueue, log)

	h := newHandlers(accounts, recommendations, alerts, scans, costs, v, scanQueue, alertQueue, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/api/v1", h.routes)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("API server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down API server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.ErrorWithErr(err, "Forced shutdown")
	}
}
