package guard

import (
	"time"

	"grid-trader-go/internal/config"

	"go.uber.org/zap"
)

// TradingGuard is a credit bucket protecting the exchange from runaway order
// submission. Credits reset to the ceiling once per window; every submission
// attempt costs one credit, and submission is refused once they run out.
// Refusal is an expected condition, not an error: the caller retries next cycle.
type TradingGuard struct {
	logger      *zap.Logger
	ceiling     int
	window      time.Duration
	credits     int
	windowStart time.Time

	now func() time.Time // overridable for tests
}

// NewTradingGuard creates a guard with a full bucket.
func NewTradingGuard(ceiling int, window time.Duration, logger *zap.Logger) *TradingGuard {
	g := &TradingGuard{
		logger:  logger,
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
	}
	g.reset()
	return g
}

// NewGuardFromConfig builds a guard from the configured ceiling and window.
func NewGuardFromConfig(cfg config.Guard, logger *zap.Logger) *TradingGuard {
	return NewTradingGuard(cfg.Credits, time.Duration(cfg.WindowHours)*time.Hour, logger)
}

func (g *TradingGuard) reset() {
	g.credits = g.ceiling
	g.windowStart = g.now()
}

// IsSafeToTrade consumes one credit and reports whether an order may be
// submitted. The window is rolled over lazily on first use after expiry.
func (g *TradingGuard) IsSafeToTrade() bool {
	if g.now().Sub(g.windowStart) >= g.window {
		g.reset()
	}
	if g.credits > 0 {
		g.credits--
		return true
	}
	g.logger.Warn("trading credits exhausted, order submission deferred",
		zap.Time("window_start", g.windowStart),
		zap.Duration("window", g.window))
	return false
}

// Credits returns the credits remaining in the current window.
func (g *TradingGuard) Credits() int {
	return g.credits
}
