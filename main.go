package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"polydoc/api"
	"polydoc/config"
	"polydoc/models"
	"polydoc/orchestrator"
	"polydoc/services"
	"polydoc/worker"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting Polydoc Conversion Service...")

	cfg := config.Load()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbSvc.Close()
	if err := dbSvc.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Connected to database successfully")

	s3Svc := services.NewS3Service(cfg)
	translatorSvc := services.NewTranslatorService(cfg.TranslatorURL)

	ctx, cancel := context.WithCancel(context.Background())

	// The pool doubles as the orchestrator's task queue; break the cycle
	// by wiring the queue in after construction.
	var pool *worker.Pool
	queue := orchestrator.TaskQueueFunc(func(ctx context.Context, task models.ConversionTask) error {
		return pool.Enqueue(ctx, task)
	})
	orch := orchestrator.New(
		dbSvc,
		s3Svc,
		translatorSvc,
		queue,
		time.Duration(cfg.ConversionTimeout)*time.Second,
		time.Duration(cfg.PresignTTL)*time.Second,
	)
	pool = worker.NewPool(cfg, redisClient, orch)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.StartWorker(ctx, workerID)
		}(i)
		log.Printf("Started worker %d", i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.RecoveryLoop(ctx)
	}()

	handler := api.NewHandler(orch, api.HeaderAuth{})
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Routes(),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Started %d conversion workers", cfg.WorkerCount)
	log.Printf("Listening on Redis queue: %s", cfg.PendingQueue)
	log.Printf("Translator URL: %s", cfg.TranslatorURL)
	log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
	log.Println("Service is ready to process conversions")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping workers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}

	redisClient.Close()
	log.Println("Conversion service stopped")
}
