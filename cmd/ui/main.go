package main

import (
	"fmt"
	"net/http"
	"os"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/logger"
	"grid-trader-go/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.NewStore(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()

	apiHandler := NewAPIHandler(log, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", apiHandler.StatusHandler)
	mux.HandleFunc("/api/orders", apiHandler.OrdersHandler)
	mux.HandleFunc("/api/assets", apiHandler.AssetCurveHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting status server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Status server failed", zap.Error(err))
	}
}
