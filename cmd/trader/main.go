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
	"portfolio-ledger/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	log.Info("Database connection successful and schema migrated.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Market data, optionally behind the Redis price cache
	var source quotes.Source = quotes.NewClient(cfg.Quotes, log)
	rdb, err := quotes.NewRedisClient(ctx, cfg.Cache.RedisURL)
	if err != nil {
		log.Warn("Redis unavailable, prices will not be cached", zap.Error(err))
	} else if rdb != nil {
		defer rdb.Close()
		ttl := time.Duration(cfg.Cache.PriceTTLSeconds) * time.Second
		source = quotes.NewCachedPrices(source, rdb, ttl, log)
		log.Info("Redis price cache enabled", zap.Duration("ttl", ttl))
	}

	book := ledger.New(db, log)
	gate := risk.NewGate(cfg.Risk, log)
	allocator := risk.NewAllocator(cfg.Trading, cfg.Risk)
	decider := decision.NewEngine(gate, allocator, log)

	tradeEngine := trader.NewEngine(log, &cfg, book, source, decider, gate)

	apiServer := api.NewAPIServer(cfg.Server.Port, api.NewRouter(api.Deps{
		Ledger:    book,
		Decider:   decider,
		Allocator: allocator,
		Source:    source,
		Engine:    tradeEngine,
	}, log), log)
	apiServer.Start()

	// Run the decision loop until shutdown
	tradeEngine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Trader has been shut down.")
}
