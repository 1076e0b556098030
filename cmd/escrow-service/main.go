package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-escrow/internal/cache"
	"ms-escrow/internal/config"
	"ms-escrow/internal/escrow"
	"ms-escrow/internal/escrow/api"
	"ms-escrow/internal/kafka"
	"ms-escrow/internal/ledger"
	"ms-escrow/internal/logger"
	"ms-escrow/internal/qr"
	"ms-escrow/internal/token"
)

func openDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	if cfg.PostgresDSN != "" {
		sqldb, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("DATABASE", "Failed to open Postgres: "+err.Error())
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		if err := sqldb.Ping(); err != nil {
			log.Fatal("DATABASE", "Failed to connect to Postgres: "+err.Error())
		}
		log.Info("DATABASE", "Postgres connection successful")
		return bun.NewDB(sqldb, pgdialect.New())
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.SQLitePath)
	if err != nil {
		log.Fatal("DATABASE", "Failed to open SQLite: "+err.Error())
	}
	log.Info("DATABASE", "SQLite ledger at "+cfg.SQLitePath)
	return bun.NewDB(sqldb, sqlitedialect.New())
}

func buildPublisher(cfg config.KafkaConfig, log *logger.Logger) escrow.Publisher {
	if !cfg.Enabled || cfg.MockMode {
		log.Info("KAFKA", "Using mock publisher")
		return &kafka.MockPublisher{Logger: log}
	}

	topics := []string{
		cfg.Topics.EventCreated,
		cfg.Topics.TicketCreated,
		cfg.Topics.JoinedEvent,
		cfg.Topics.CheckedIn,
		cfg.Topics.Withdrawn,
	}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", "Topic bootstrap failed: "+err.Error())
	}
	return kafka.NewProducer(cfg.Brokers, cfg.Topics, log)
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	bunDB := openDatabase(cfg.Database, log)
	defer bunDB.Close()

	ledgerDB := ledger.New(bunDB)
	if err := ledgerDB.Init(ctx); err != nil {
		log.Fatal("DATABASE", "Failed to create accounts table: "+err.Error())
	}

	var eventCache *cache.EventCache
	if cfg.Redis.Enabled {
		c, err := cache.Connect(cfg.Redis.Addr, cfg.Redis.CacheTTL, log)
		if err != nil {
			log.Warn("CACHE", "Running without Redis cache")
		} else {
			eventCache = c
		}
	}

	service := escrow.NewService(ledgerDB, token.NewLedgerMinter(), buildPublisher(cfg.Kafka, log), log)
	qrGen := qr.NewGenerator(os.Getenv("QR_SECRET_KEY"))
	handler := api.NewHandler(service, eventCache, qrGen, log, cfg.Faucet)

	r := chi.NewRouter()
	r.Use(api.RequestID)
	r.Use(api.RequestLogger(log))
	r.Mount("/", handler.Routes())

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "Escrow service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "HTTP error: "+err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "Escrow service shutdown complete")
}
