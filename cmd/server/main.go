package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portfolio-ledger/internal/api"
	"portfolio-ledger/internal/config"
	"portfolio-ledger/internal/database"
	"portfolio-ledger/internal/decision"
	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/logger"
	"portfolio-ledger/internal/quotes"
	"portfolio-ledger/internal/risk"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	var source quotes.Source = quotes.NewClient(cfg.Quotes, log)
	rdb, err := quotes.NewRedisClient(context.Background(), cfg.Cache.RedisURL)
	if err != nil {
		log.Warn("Redis unavailable, prices will not be cached", zap.Error(err))
	} else if rdb != nil {
		defer rdb.Close()
		source = quotes.NewCachedPrices(source, rdb, time.Duration(cfg.Cache.PriceTTLSeconds)*time.Second, log)
	}

	gate := risk.NewGate(cfg.Risk, log)
	allocator := risk.NewAllocator(cfg.Trading, cfg.Risk)

	server := api.NewAPIServer(cfg.Server.Port, api.NewRouter(api.Deps{
		Ledger:    ledger.New(db, log),
		Decider:   decision.NewEngine(gate, allocator, log),
		Allocator: allocator,
		Source:    source,
	}, log), log)
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
