package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/grid"

	"go.uber.org/zap"
)

// Engine owns the strategy loop: strictly sequential, one cycle per tick,
// nothing concurrent with anything else.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	strategy Strategy
	sctx     *StrategyContext
}

// NewEngine creates a new trading engine around a strategy.
func NewEngine(strategy Strategy, sctx *StrategyContext) *Engine {
	return &Engine{
		logger:   sctx.Logger,
		cfg:      sctx.Cfg,
		strategy: strategy,
		sctx:     sctx,
	}
}

// Run starts the engine's main loop. It returns when the context is
// cancelled or a fatal fault makes the ladder untrustworthy; transient
// exchange faults only abandon the current cycle.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Initializing strategy", zap.String("strategy", e.strategy.Name()))
	if err := e.strategy.Initialize(e.sctx); err != nil {
		return fmt.Errorf("initialize strategy %s: %w", e.strategy.Name(), err)
	}
	e.logger.Info("Strategy initialized successfully.")

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting strategy loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return nil
		case <-ticker.C:
			err := e.strategy.Tick(e.sctx)
			if err == nil {
				continue
			}
			if IsFatal(err) {
				e.logger.Error("Fatal fault, halting", zap.Error(err))
				return err
			}
			// No partial state was committed; the next cycle rebuilds
			// everything from the remote snapshot.
			e.logger.Error("Cycle abandoned", zap.Error(err))
		}
	}
}

// IsFatal reports whether a cycle error must halt the process instead of
// being retried: a remote order that cannot be mapped, a ladder shape
// violation, or invalid configuration.
func IsFatal(err error) bool {
	var unexpected *grid.UnexpectedOrderError
	var invariant *grid.InvariantError
	var cfgErr *config.ValidationError
	return errors.As(err, &unexpected) || errors.As(err, &invariant) || errors.As(err, &cfgErr)
}
