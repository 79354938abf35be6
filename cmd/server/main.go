package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/NadavAzoulay124/portfolio.AI/internal/config"
	"github.com/NadavAzoulay124/portfolio.AI/internal/database"
	"github.com/NadavAzoulay124/portfolio.AI/internal/logger"
	"github.com/NadavAzoulay124/portfolio.AI/internal/portfolio"
	"github.com/NadavAzoulay124/portfolio.AI/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
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
	log.Info("Database connection successful and schema migrated.")

	ledger := portfolio.NewLedger(db, log)

	ttl := time.Duration(cfg.Server.UploadTTLSeconds) * time.Second
	srv, err := server.New(ledger, log, cfg.Server.StaticDir, ttl)
	if err != nil {
		log.Fatal("Failed to build HTTP server", zap.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting API server", zap.String("address", addr))

	if err := srv.Router.Run(addr); err != nil {
		log.Fatal("API server failed", zap.Error(err))
	}
}
