package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/hostmaster-io/hostmaster/internal/cache"
	"github.com/hostmaster-io/hostmaster/internal/config"
	"github.com/hostmaster-io/hostmaster/internal/notify"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/pkg/metrics"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/repository/postgres"
	"github.com/hostmaster-io/hostmaster/internal/scanner"
	"github.com/hostmaster-io/hostmaster/internal/services"
	"github.com/hostmaster-io/hostmaster/internal/vault"
	"github.com/hostmaster-io/hostmaster/internal/worker"
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
		OnTerminal:    metrics.RecordTaskOutcome,
	}, log)
	alertQueue := queue.New(services.AlertQueueName, store, queue.Options{
		Attempts:     cfg.Queue.AlertAttempts,
		BackoffKind:  queue.BackoffLinear,
		BackoffDelay: cfg.Queue.AlertBackoffDelay,
		PollInterval: cfg.Queue.PollInterval,
		OnTerminal:   metrics.RecordTaskOutcome,
	}, log)

	costs := services.NewCostService(resources, costHistory, cache.New(rdb), log)
	engine := services.NewRecommendationEngine(resources, recommendations, costs, log)
	evaluator := services.NewAlertEvaluator(accounts, alerts, resources, costs, alertQueue, log)
	scans := services.NewScanService(accounts, jobs, scanQueue, log)

	dispatcher := notify.NewDispatcher(log,
		notify.NewEmailSender(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName),
		notify.NewSlackSender(),
		notify.NewSMSSender(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber),
	)

	scanProcessor := worker.NewScanProcessor(
		accounts, jobs, resources,
		v, scanner.NewAWSClient(log),
		costs, engine, evaluator,
		scanQueue, cfg.Worker.ScanTimeout, log,
	)
	alertProcessor := worker.NewAlertProcessor(accounts, dispatcher, log)

	scheduler := services.NewScheduler(accounts, scans, log)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanQueue.Process(ctx, cfg.Worker.Concurrency, scanProcessor.Handle)
	}()
	go func() {
		defer wg.Done()
		alertQueue.Process(ctx, cfg.Worker.Concurrency, alertProcessor.Handle)
	}()

	log.Infof("Worker started with concurrency %d", cfg.Worker.Concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker")
	scheduler.Stop()
	cancel()
	wg.Wait()
}
