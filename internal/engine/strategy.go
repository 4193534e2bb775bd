package engine

import (
	"time"

	"grid-trader-go/internal/binance"
	"grid-trader-go/internal/config"
	"grid-trader-go/internal/guard"
	"grid-trader-go/internal/models"
	"grid-trader-go/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StrategyContext provides the strategy with access to the core components.
type StrategyContext struct {
	Logger *zap.Logger
	Cfg    *config.Config
	Client binance.RestClientInterface
	Store  *storage.Store
	Guard  *guard.TradingGuard
}

// EngineState is the per-cycle market view: price, balances and the open
// order snapshot. It is rebuilt wholesale at the top of every cycle and
// thrown away at the end; nothing in it survives between cycles.
type EngineState struct {
	CycleStart time.Time
	Price      decimal.Decimal
	Account    models.Account
	OpenOrders []models.Order
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Initialize gives the strategy a chance to perform setup tasks.
	Initialize(ctx *StrategyContext) error

	// Tick runs one full strategy cycle.
	Tick(ctx *StrategyContext) error
}
