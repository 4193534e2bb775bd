package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grid-trader-go/internal/binance"
	"grid-trader-go/internal/config"
	"grid-trader-go/internal/engine"
	"grid-trader-go/internal/guard"
	"grid-trader-go/internal/logger"
	"grid-trader-go/internal/simulator"
	"grid-trader-go/internal/storage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	backtest := flag.String("backtest", "", "replay a kline CSV through the simulator instead of trading")
	configPath := flag.String("config", "./configs", "directory containing config.yml")
	flag.Parse()

	// .env is optional; API keys can come from it or the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// The logger isn't up yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	if *backtest != "" {
		if err := runBacktest(&cfg, *backtest, log); err != nil {
			log.Fatal("Backtest failed", zap.Error(err))
		}
		return
	}

	store, err := storage.NewStore(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()
	log.Info("Database opened and schema migrated.")

	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	sctx := &engine.StrategyContext{
		Logger: log,
		Cfg:    &cfg,
		Client: restClient,
		Store:  store,
		Guard:  guard.NewGuardFromConfig(cfg.Guard, log),
	}

	var strategy engine.Strategy
	switch cfg.Trading.Strategy {
	case "grid":
		strategy = engine.NewGridStrategy()
	case "maker":
		strategy = engine.NewMakerStrategy()
	default:
		log.Fatal("Unknown strategy", zap.String("strategy", cfg.Trading.Strategy))
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := engine.NewEngine(strategy, sctx).Run(ctx); err != nil {
		log.Error("Engine halted", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Bot has been shut down.")
}

// runBacktest replays a historical kline file through the grid transition
// rules and prints the outcome.
func runBacktest(cfg *config.Config, path string, log *zap.Logger) error {
	gridCfg, err := config.NewGridConfig(cfg.Grid)
	if err != nil {
		return err
	}

	klines, err := simulator.LoadKlinesCSV(path)
	if err != nil {
		return err
	}
	log.Info("Replaying klines", zap.String("file", path), zap.Int("count", len(klines)))

	result := simulator.NewSimulator(gridCfg, log).Run(klines)

	log.Info("Backtest complete",
		zap.Int("trades", result.Trades),
		zap.String("profit", result.Profit.StringFixed(int32(cfg.Grid.PriceResolution))),
		zap.String("final_price", result.FinalPrice.String()),
		zap.Int("open_grids", result.OpenGrids),
	)
	return nil
}
