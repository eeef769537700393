package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/investapk/investa-backend/internal/api"
	"github.com/investapk/investa-backend/internal/config"
	"github.com/investapk/investa-backend/internal/handler"
	"github.com/investapk/investa-backend/internal/infrastructure/kafka"
	"github.com/investapk/investa-backend/internal/infrastructure/redis"
	"github.com/investapk/investa-backend/internal/infrastructure/storage"
	"github.com/investapk/investa-backend/internal/observability"
	"github.com/investapk/investa-backend/internal/repository/sqlstore"
	service "github.com/investapk/investa-backend/internal/services"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	shutdown, _ := observability.Setup("investa-backend")
	defer shutdown(context.Background())

	cfg := config.Load()

	dialect, err := sqlstore.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatalf("Bad database driver: %v", err)
	}

	db, err := sql.Open(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := sqlstore.EnsureSchema(context.Background(), db, dialect); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	userRepo := sqlstore.NewUserStore(db, dialect)
	investmentRepo := sqlstore.NewInvestmentStore(db, dialect)
	withdrawalRepo := sqlstore.NewWithdrawalStore(db, dialect)
	earningRepo := sqlstore.NewEarningStore(db, dialect)

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	var store storage.Storage
	if cfg.StorageBackend == "s3" {
		store, err = storage.NewS3Storage(context.Background())
		if err != nil {
			log.Fatalf("Failed to init S3 storage: %v", err)
		}
	} else {
		store = storage.NewDiskStorage(cfg.UploadDir)
	}

	svc := service.NewInvestService(
		userRepo, investmentRepo, withdrawalRepo, earningRepo,
		redisClient, producer, store,
		cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPassword,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	earningsConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "earnings", "investa-backend-earnings", userRepo, investmentRepo, earningRepo)
	go earningsConsumer.Consume(workerCtx)
	defer earningsConsumer.Close()

	accrual := service.NewAccrualWorker(investmentRepo, producer, cfg.AccrualInterval)
	go accrual.Run(workerCtx)

	router := api.SetupRouter(handler.NewHandler(svc), redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancelWorkers()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
